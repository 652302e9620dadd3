// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	golog "log"
	"os"

	"github.com/grailbio/remit/log"
)

func init() {
	Register(Logger, "off", "", "turn logging off",
		func(cfg Config, arg string) (Config, error) {
			return &loggerOff{cfg}, nil
		},
	)
	Register(Logger, "debug", "", "log to standard error at debug level",
		func(cfg Config, arg string) (Config, error) {
			return &loggerDebug{cfg}, nil
		},
	)
	Register(Logger, "file", "path", "append logs to the file at path",
		func(cfg Config, arg string) (Config, error) {
			if arg == "" {
				return nil, errEmptyArg("logger", "file", "path")
			}
			return &loggerFile{cfg, arg}, nil
		},
	)
}

type loggerOff struct {
	Config
}

func (c *loggerOff) Logger() (*log.Logger, error) {
	// A nil logger discards all messages.
	return nil, nil
}

type loggerDebug struct {
	Config
}

func (c *loggerDebug) Logger() (*log.Logger, error) {
	return log.New(golog.New(os.Stderr, "", golog.LstdFlags), log.DebugLevel), nil
}

type loggerFile struct {
	Config
	path string
}

func (c *loggerFile) Logger() (*log.Logger, error) {
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return log.New(golog.New(f, "", golog.LstdFlags), log.InfoLevel), nil
}
