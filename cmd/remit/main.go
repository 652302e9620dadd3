// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Remit is the command line tool for the remit task execution
// system. Its principal job is to serve a worker over HTTP so that
// coordinators elsewhere in a cluster can dispatch tasks to it.
//
// Usage:
//
//	remit serve [-addr addr] [-id id] [-procs n] [-peers url,...]
//	remit config
//	remit info url...
//
// Serve runs a worker agent: it executes tasks submitted through the
// REST API against the registered functions compiled into the binary,
// keeping results resident in the configured store. Config dumps the
// active configuration in YAML form. Info queries one or more running
// workers and prints their identity and resident values.
//
// Configuration is read from the file named by -config (default
// $HOME/.remit/config.yaml, if it exists) and may be overridden by
// flags named after the configuration's keys.
package main

import (
	"context"
	_ "expvar"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/grailbio/base/data"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/config"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/pool"
	"github.com/grailbio/remit/pool/client"
	"github.com/grailbio/remit/pool/server"
	"github.com/grailbio/remit/rest"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: remit [flags] command [arguments]

The commands are:

	serve	serve a worker over HTTP
	config	print the active configuration
	info	print worker status for the given URLs

Flags:
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	var (
		configFile = flag.String("config", os.ExpandEnv("$HOME/.remit/config.yaml"), "the remit configuration file")
		flagConfig = new(config.Flag)
	)
	flagConfig.Init(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	var base config.Config = make(config.Base)
	if b, err := ioutil.ReadFile(*configFile); err == nil {
		if err := config.Unmarshal(b, base.Keys()); err != nil {
			log.Fatalf("config %s: %v", *configFile, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatal(err)
	}
	flagConfig.Config = base
	cfg, err := config.Make(flagConfig)
	if err != nil {
		log.Fatal(err)
	}
	cfg = config.Once(cfg)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "serve":
		serve(cfg, args)
	case "config":
		b, err := config.Marshal(cfg)
		if err != nil {
			log.Fatal(err)
		}
		os.Stdout.Write(b)
	case "info":
		info(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "remit: unknown command %q\n", cmd)
		usage()
	}
}

func serve(cfg config.Config, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		addr  = flags.String("addr", ":9902", "address on which to serve")
		id    = flags.String("id", hostID(), "worker identity reported to coordinators")
		procs = flags.Int("procs", runtime.NumCPU(), "number of concurrent task executions")
		peers = flags.String("peers", "", "comma-separated URLs of peer workers for dependency fetch")
	)
	flags.Parse(args)

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	store, err := cfg.Store()
	if err != nil {
		log.Fatal(err)
	}
	w := pool.NewWorker(*id, *procs, remit.Funcs, store, dialPeers(*peers, logger), logger)
	logger.Printf("serve %s: worker %s, %d procs", *addr, *id, *procs)
	httpServer := &http.Server{
		Addr:    *addr,
		Handler: rest.Handler(server.NewNode(w), logger),
	}
	log.Fatal(httpServer.ListenAndServe())
}

// dialPeers resolves peer worker IDs against a static list of URLs.
// Peers are dialed on first use: at startup, the other workers in
// the cluster may not be serving yet.
func dialPeers(urls string, logger *log.Logger) pool.Peers {
	if urls == "" {
		return nil
	}
	var (
		mu   sync.Mutex
		byid = make(map[string]remit.Worker)
		left = strings.Split(urls, ",")
	)
	return func(id string) remit.Worker {
		mu.Lock()
		defer mu.Unlock()
		if w, ok := byid[id]; ok {
			return w
		}
		var remaining []string
		for _, url := range left {
			w, err := client.New(context.Background(), url, nil, logger)
			if err != nil {
				logger.Errorf("dial peer %s: %v", url, err)
				remaining = append(remaining, url)
				continue
			}
			byid[w.ID()] = w
		}
		left = remaining
		return byid[id]
	}
}

func info(cfg config.Config, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: remit info url...")
		os.Exit(2)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	for _, url := range args {
		w, err := client.New(ctx, url, nil, logger)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s: worker %s, %d procs\n", url, w.ID(), w.Procs())
		var (
			n     int
			total data.Size
		)
		err = w.Scan(ctx, func(key remit.Key, size data.Size) error {
			fmt.Printf("\t%s\t%s\n", key, size)
			n++
			total += size
			return nil
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("\t%d resident values, %s\n", n, total)
	}
}

func hostID() string {
	name, err := os.Hostname()
	if err != nil {
		return "remit"
	}
	return name
}
