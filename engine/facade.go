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

// Package engine implements the log-structured storage engine described in
// SPEC_FULL.md §2 (C1-C10): a generation-numbered append-only log, an
// in-memory index, a single guarded writer with online compaction, and
// many independently-cloneable readers.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/launix-de/go-mysqlstack/xlog"
)

// KVStore is the capability set any backend must satisfy (spec §4.8,
// §9 "dynamic dispatch for engine selection"). Engine implements it for the
// log-structured core. cmd/kvsd-server's --engine flag does not choose
// among KVStore implementations: it picks the GenerationStore that Engine
// runs on.
type KVStore interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
	Close() error
}

// Engine is the façade from spec §4.8: cheaply cloneable, owning one
// guarded Writer and a thread pool for writes, with reads served directly
// on the calling goroutine via an independent Reader clone.
type Engine struct {
	shared *shared
	reader *Reader
}

type shared struct {
	writer *Writer
	pool   *pool
	reader *Reader // template reader, never used directly; cloned per Engine value

	refs      atomic.Int32
	unlock    func() error
	closeOnce sync.Once
	closeErr  error
}

// Options configures Open.
type Options struct {
	Store           GenerationStore // defaults to a local directory store
	Concurrency     int             // worker count for the write pool, default 4
	CompactionLimit uint64          // default DefaultCompactionLimit
	Log             *xlog.Log       // default: a stdlib-backed xlog.Log at INFO
}

// Open implements spec §4.5's initialization sequence and constructs the
// façade described in §4.8.
func Open(ctx context.Context, dir string, opts Options) (*Engine, error) {
	store := opts.Store
	unlock := func() error { return nil }
	if store == nil {
		s, err := NewLocalStore(dir)
		if err != nil {
			return nil, err
		}
		store = s
		unlock, err = lockDataDir(dir)
		if err != nil {
			return nil, err
		}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.CompactionLimit == 0 {
		opts.CompactionLimit = DefaultCompactionLimit
	}
	log := opts.Log
	if log == nil {
		log = xlog.NewStdLog(xlog.Level(xlog.INFO))
	}

	if name, ok, err := store.ReadMarker(); err != nil {
		unlock()
		return nil, err
	} else if ok && name != "kvs" {
		unlock()
		return nil, newErr(WrongEngine, "data directory was opened with engine "+name, nil)
	}
	if err := store.WriteMarker("kvs"); err != nil {
		log.Warning("kvsd: could not write engine marker: %v", err)
	}

	writer, index, safe, err := openWriter(ctx, store, opts.CompactionLimit, log)
	if err != nil {
		unlock()
		return nil, err
	}

	reader := newReader(store, index, safe, log)

	sh := &shared{
		writer: writer,
		pool:   newPool(opts.Concurrency),
		reader: reader,
		unlock: unlock,
	}
	sh.refs.Store(1)
	return &Engine{shared: sh, reader: reader.Clone()}, nil
}

// Clone returns a cheap handle sharing the writer and thread pool but with
// its own reader file-handle cache (spec §4.6 "cloning a reader creates a
// fresh empty cache"). The shared writer is only actually closed once
// every clone (and the original) has called Close (spec §3.3).
func (e *Engine) Clone() *Engine {
	e.shared.refs.Add(1)
	return &Engine{shared: e.shared, reader: e.shared.reader.Clone()}
}

// Set offloads to the write pool, which serializes through the writer
// mutex (spec §4.8).
func (e *Engine) Set(ctx context.Context, key, value string) error {
	result := e.shared.pool.submit(func() error {
		return e.shared.writer.Set(ctx, key, value)
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remove offloads to the write pool; spec §4.5.3's KeyNotFound contract is
// preserved end to end.
func (e *Engine) Remove(ctx context.Context, key string) error {
	result := e.shared.pool.submit(func() error {
		return e.shared.writer.Remove(ctx, key)
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get runs on the calling goroutine (spec §4.8/§9 "reads are CPU+disk-bound
// and short; running them on the calling worker is acceptable").
func (e *Engine) Get(ctx context.Context, key string) (string, bool, error) {
	return e.reader.Get(ctx, key)
}

// Close flushes the current log and releases this handle's reader cache.
func (e *Engine) Close() error {
	e.reader.Close()
	if e.shared.refs.Add(-1) > 0 {
		return nil
	}
	e.shared.closeOnce.Do(func() {
		e.shared.pool.close()
		e.shared.closeErr = e.shared.writer.Close()
		e.shared.unlock()
	})
	return e.shared.closeErr
}

var _ KVStore = (*Engine)(nil)
