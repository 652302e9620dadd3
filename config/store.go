// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/store"
)

func init() {
	Register(Store, "mem", "", "hold resident values in process memory",
		func(cfg Config, arg string) (Config, error) {
			return &storeMem{cfg}, nil
		},
	)
	Register(Store, "file", "dir", "hold resident values in the directory dir",
		func(cfg Config, arg string) (Config, error) {
			if arg == "" {
				return nil, errEmptyArg("store", "file", "dir")
			}
			return &storeFile{cfg, arg}, nil
		},
	)
}

type storeMem struct {
	Config
}

func (c *storeMem) Store() (remit.Store, error) {
	return store.NewMem(), nil
}

type storeFile struct {
	Config
	dir string
}

func (c *storeFile) Store() (remit.Store, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	return &store.File{Root: c.dir, Log: logger.Tee(nil, "store: ")}, nil
}

func errEmptyArg(key, kind, arg string) error {
	return fmt.Errorf("%s: provider %s requires an argument (%s)", key, kind, arg)
}
