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
package engine

import (
	"bytes"
	"context"
	"sync"

	"github.com/launix-de/go-mysqlstack/xlog"
)

// Reader implements spec §4.6. It holds the path (via store), a handle to
// the shared index, a handle to the shared safe point, and its own,
// independently owned per-generation file-handle cache. Cloning a Reader
// (see Clone) produces a fresh, empty cache.
type Reader struct {
	store GenerationStore
	index *Index
	safe  *safePoint
	log   *xlog.Log

	mu    sync.Mutex
	cache map[uint64]PositionedReader
}

func newReader(store GenerationStore, index *Index, safe *safePoint, log *xlog.Log) *Reader {
	return &Reader{store: store, index: index, safe: safe, log: log, cache: make(map[uint64]PositionedReader)}
}

// Clone returns an independent Reader view sharing the index and safe
// point but with its own empty file-handle cache.
func (r *Reader) Clone() *Reader {
	return newReader(r.store, r.index, r.safe, r.log)
}

// Get implements spec §4.6 steps 1-6.
func (r *Reader) Get(ctx context.Context, key string) (string, bool, error) {
	sp := r.safe.Load()

	r.mu.Lock()
	for gen, cr := range r.cache {
		if gen < sp {
			cr.Close()
			delete(r.cache, gen)
		}
	}
	r.mu.Unlock()

	pos, ok := r.index.Get(key)
	if !ok {
		return "", false, nil
	}

	cr, err := r.handleFor(ctx, pos.Gen)
	if err != nil {
		return "", false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := cr.Seek(pos.Pos); err != nil {
		return "", false, ErrIO("seeking log file", err)
	}
	buf := make([]byte, pos.Len)
	if _, err := readFull(cr, buf); err != nil {
		return "", false, ErrIO("reading log file", err)
	}
	cmd, _, err := DecodeCommand(bytes.NewReader(buf))
	if err != nil {
		return "", false, err
	}
	if cmd.Op == OpRemove {
		// Should not occur when the index points to a live Set; treat as
		// absent per spec §4.6 step 6.
		return "", false, nil
	}
	return cmd.Value, true, nil
}

func (r *Reader) handleFor(ctx context.Context, gen uint64) (PositionedReader, error) {
	r.mu.Lock()
	if cr, ok := r.cache[gen]; ok {
		r.mu.Unlock()
		return cr, nil
	}
	r.mu.Unlock()

	cr, err := r.store.Open(ctx, gen)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[gen]; ok {
		cr.Close()
		return existing, nil
	}
	r.cache[gen] = cr
	return cr, nil
}

// Close releases every cached file handle held by this reader view.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for gen, cr := range r.cache {
		if err := cr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.cache, gen)
	}
	return firstErr
}
