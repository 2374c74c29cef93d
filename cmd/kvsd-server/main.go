/*
Copyright (C) 2026  kvsd contributors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command kvsd-server is the thin front-end spec.md §1 keeps out of the
// core's scope: flag/config parsing and logging setup around the engine
// and server packages.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/dc0d/onexit"
	"github.com/spf13/pflag"

	"github.com/launix-de/go-mysqlstack/xlog"

	"github.com/launix-de/kvsd/config"
	"github.com/launix-de/kvsd/engine"
	"github.com/launix-de/kvsd/server"
	"github.com/launix-de/kvsd/server/monitor"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "path to a kvsd.jsonc config file")
		addr        = pflag.String("addr", "", "listen address (default 127.0.0.1:4000)")
		engineName  = pflag.String("engine", "", "storage engine: kvs, s3, or ceph")
		dir         = pflag.String("dir", "", "data directory")
		workers     = pflag.Int("workers", 0, "write worker pool size")
		console     = pflag.Bool("console", false, "start an interactive operator console on stdin")
		monitorAddr = pflag.String("monitor-addr", "", "address for the websocket stats endpoint")
		watchDir    = pflag.Bool("watch-dir", false, "warn on foreign files appearing in the data directory")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvsd-server: loading config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *engineName != "" {
		cfg.Engine = *engineName
	}
	if *dir != "" {
		cfg.Dir = *dir
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *monitorAddr != "" {
		cfg.MonitorAddr = *monitorAddr
	}
	if *watchDir {
		cfg.WatchDir = true
	}

	log := xlog.NewStdLog(xlog.Level(xlog.INFO))

	store, err := backendStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvsd-server:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	eng, err := engine.Open(ctx, cfg.Dir, engine.Options{
		Store:           store,
		Concurrency:     cfg.Workers,
		CompactionLimit: cfg.CompactionLimit,
		Log:             log,
	})
	if err != nil {
		if kerr, ok := err.(*engine.Error); ok && kerr.Kind == engine.WrongEngine {
			fmt.Fprintln(os.Stderr, "kvsd-server:", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "kvsd-server: opening data directory:", err)
		os.Exit(1)
	}
	onexit.Register(func() { eng.Close() })

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvsd-server: listen:", err)
		os.Exit(1)
	}
	srv := server.New(ln, server.EngineStore{Engine: eng}, log)

	if cfg.MonitorAddr != "" {
		go monitor.Serve(cfg.MonitorAddr, func() monitor.Snapshot {
			s := eng.Stats()
			return monitor.Snapshot{Keys: s.Keys, Uncompacted: s.Uncompacted, Generation: s.Generation}
		}, log)
	}
	if cfg.WatchDir {
		go watchForeignFiles(cfg.Dir, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("kvsd-server: shutting down")
		cancel()
	}()

	if *console {
		go runConsole(eng, cancel)
	}

	log.Info("kvsd-server: listening on %s", cfg.Addr)
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kvsd-server:", err)
		onexit.Exit(1)
		return
	}
	onexit.Exit(0)
}

// runConsole implements SPEC_FULL.md §4.13: a small operator REPL over the
// running engine, grounded on the teacher's own chzyer/readline prompt.
func runConsole(eng *engine.Engine, cancel context.CancelFunc) {
	rl, err := readline.New("kvsd> ")
	if err != nil {
		return
	}
	defer rl.Close()
	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "stats":
			s := eng.Stats()
			fmt.Printf("keys=%d uncompacted=%d generation=%d\n", s.Keys, s.Uncompacted, s.Generation)
		case "compact":
			fmt.Println("compaction runs automatically when the uncompacted threshold is crossed")
		case "quit", "exit":
			cancel()
			return
		case "":
		default:
			fmt.Println("commands: stats, compact, quit")
		}
	}
}

func watchForeignFiles(dir string, log *xlog.Log) {
	watcher, err := newDirWatcher(dir)
	if err != nil {
		log.Warning("kvsd-server: watch-dir disabled: %v", err)
		return
	}
	defer watcher.Close()
	watcher.Run(log)
}
