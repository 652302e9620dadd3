// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/pool"
	"github.com/grailbio/remit/pool/client"
)

func init() {
	Register(Pool, "local", "NxP", "run N in-process workers with P procs each",
		func(cfg Config, arg string) (Config, error) {
			n, procs := 1, 1
			switch {
			case arg == "":
			case strings.Contains(arg, "x"):
				if _, err := fmt.Sscanf(arg, "%dx%d", &n, &procs); err != nil {
					return nil, fmt.Errorf("pool: local: bad argument %q: %v", arg, err)
				}
			default:
				if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
					return nil, fmt.Errorf("pool: local: bad argument %q: %v", arg, err)
				}
			}
			if n < 1 || procs < 1 {
				return nil, fmt.Errorf("pool: local: bad argument %q", arg)
			}
			return &poolLocal{cfg, n, procs}, nil
		},
	)
	Register(Pool, "static", "url,...", "use the remote workers at the given URLs",
		func(cfg Config, arg string) (Config, error) {
			if arg == "" {
				return nil, errEmptyArg("pool", "static", "url,...")
			}
			return &poolStatic{cfg, strings.Split(arg, ",")}, nil
		},
	)
}

type poolLocal struct {
	Config
	n, procs int
}

func (c *poolLocal) Pool() (remit.Pool, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	return pool.NewLocal(c.n, c.procs, remit.Funcs, nil, logger), nil
}

type poolStatic struct {
	Config
	addrs []string
}

func (c *poolStatic) Pool() (remit.Pool, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}
	return client.NewPool(context.Background(), c.addrs, nil, logger)
}
