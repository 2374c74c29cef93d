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
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/launix-de/go-mysqlstack/xlog"
)

// DefaultCompactionLimit is the uncompacted-bytes threshold from spec §3.2.
const DefaultCompactionLimit = 1 << 20 // 1 MiB

// Writer owns the single active log generation, the writer-side reader map
// used for compaction, the index, and the uncompacted-bytes counter. All of
// spec §4.5-§4.7 lives here, guarded by mu so there is exactly one writer
// at a time (spec §5).
type Writer struct {
	mu sync.Mutex

	store    GenerationStore
	index    *Index
	safe     *safePoint
	gens     *generationSet
	readers  map[uint64]PositionedReader
	w        PositionedWriter
	currGen  uint64
	uncompacted uint64
	compactionLimit uint64
	log      *xlog.Log
}

// safePoint is the shared, monotonically non-decreasing lower bound on
// generations a reader may open (spec §3.2/§5). Stores and loads use
// sequentially-consistent atomic operations, matching spec §5's ordering
// requirement for the compaction commit point.
type safePoint struct {
	v atomic.Uint64
}

func (s *safePoint) Load() uint64    { return s.v.Load() }
func (s *safePoint) Store(gen uint64) { s.v.Store(gen) }

// openWriter performs spec §4.5's initialization: list generations, replay
// each into the index, mint a new current generation, and compute the
// initial safe point.
func openWriter(ctx context.Context, store GenerationStore, compactionLimit uint64, log *xlog.Log) (*Writer, *Index, *safePoint, error) {
	gens, err := store.List(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	index := NewIndex()
	readers := make(map[uint64]PositionedReader)
	var uncompacted uint64
	var maxGen uint64
	var minGen uint64
	haveMin := false

	for _, gen := range gens {
		if gen > maxGen {
			maxGen = gen
		}
		if !haveMin || gen < minGen {
			minGen = gen
			haveMin = true
		}
		r, err := store.Open(ctx, gen)
		if err != nil {
			return nil, nil, nil, err
		}
		readers[gen] = r
		n, err := loadGeneration(gen, r, index, &uncompacted)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("kvsd: loaded generation %d (%d commands)", gen, n)
	}

	currGen := maxGen + 1
	w, err := store.Create(ctx, currGen)
	if err != nil {
		return nil, nil, nil, err
	}
	cr, err := store.Open(ctx, currGen)
	if err != nil {
		return nil, nil, nil, err
	}
	readers[currGen] = cr

	sp := &safePoint{}
	if haveMin {
		sp.Store(minGen)
	} else {
		sp.Store(currGen)
	}

	gs := newGenerationSet(gens)
	gs.add(currGen)

	writer := &Writer{
		store:           store,
		index:           index,
		safe:            sp,
		gens:            gs,
		readers:         readers,
		w:               w,
		currGen:         currGen,
		uncompacted:     uncompacted,
		compactionLimit: compactionLimit,
		log:             log,
	}
	return writer, index, sp, nil
}

// loadGeneration streams every command in a single generation, replaying
// it into the index per spec §4.5.1, and returns the number of commands
// found.
func loadGeneration(gen uint64, r PositionedReader, index *Index, uncompacted *uint64) (int, error) {
	count := 0
	for {
		off := r.Pos()
		cmd, n, err := DecodeCommand(r)
		if err != nil {
			if err == io.EOF {
				// Clean end of the generation at a command boundary.
				break
			}
			if e, ok := err.(*Error); ok && e.Kind == SerializationError {
				// Truncated trailing command: stop at first short read,
				// per spec §5 crash semantics.
				break
			}
			return count, err
		}
		count++
		switch cmd.Op {
		case OpSet:
			old, had := index.Insert(cmd.Key, CommandPos{Gen: gen, Pos: off, Len: uint64(n)})
			if had {
				*uncompacted += old.Len
			}
		case OpRemove:
			old, had := index.Remove(cmd.Key)
			if had {
				*uncompacted += old.Len
			}
			*uncompacted += uint64(n)
		}
	}
	return count, nil
}

// Set implements spec §4.5.2.
func (w *Writer) Set(ctx context.Context, key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cmd := SetCommand(key, value)
	buf := cmd.Encode()
	pos := w.w.Pos()
	if _, err := w.w.Write(buf); err != nil {
		return ErrIO("appending set command", err)
	}
	if err := w.w.Flush(); err != nil {
		return ErrIO("flushing log", err)
	}

	old, had := w.index.Insert(key, CommandPos{Gen: w.currGen, Pos: pos, Len: uint64(len(buf))})
	if had {
		w.uncompacted += old.Len
	}

	if w.uncompacted > w.compactionLimit {
		if err := w.compact(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Remove implements spec §4.5.3. The early return on a missing key must
// not write to the log or touch uncompacted (tested by property 4 / S3).
func (w *Writer) Remove(ctx context.Context, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index.Get(key); !ok {
		return ErrKeyNotFound(key)
	}

	cmd := RemoveCommand(key)
	buf := cmd.Encode()
	if _, err := w.w.Write(buf); err != nil {
		return ErrIO("appending remove command", err)
	}
	if err := w.w.Flush(); err != nil {
		return ErrIO("flushing log", err)
	}

	old, had := w.index.Remove(key)
	if had {
		w.uncompacted += old.Len
	}
	w.uncompacted += uint64(len(buf))

	if w.uncompacted > w.compactionLimit {
		if err := w.compact(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the current log, per spec §3.3 "on the final release, the
// current log's buffered writer is flushed".
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for _, r := range w.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := w.w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// readerFor returns the writer-side reader for gen, used only during
// compaction to copy live command bytes verbatim.
func (w *Writer) readerFor(gen uint64) (PositionedReader, error) {
	r, ok := w.readers[gen]
	if !ok {
		return nil, ErrReaderMissing(gen)
	}
	return r, nil
}

// readCommandBytes seeks the writer-side reader for pos.Gen and reads
// exactly pos.Len bytes verbatim (used by the compactor).
func (w *Writer) readCommandBytes(pos CommandPos) ([]byte, error) {
	r, err := w.readerFor(pos.Gen)
	if err != nil {
		return nil, err
	}
	if err := r.Seek(pos.Pos); err != nil {
		return nil, ErrIO("seeking log file", err)
	}
	buf := make([]byte, pos.Len)
	if _, err := readFull(r, buf); err != nil {
		return nil, ErrIO("reading log file", err)
	}
	return buf, nil
}

func readFull(r PositionedReader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
