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

	units "github.com/docker/go-units"
	"github.com/google/uuid"
)

// compact implements spec §4.7's "two new generations" protocol. Callers
// must already hold w.mu.
func (w *Writer) compact(ctx context.Context) error {
	runID := uuid.New()
	tempGen := w.currGen + 1
	nextGen := w.currGen + 2

	w.log.Info("kvsd: compaction %s starting (uncompacted=%s)", runID, units.HumanSize(float64(w.uncompacted)))

	tempWriter, err := w.store.Create(ctx, tempGen)
	if err != nil {
		return err
	}

	type rewrite struct {
		key string
		pos CommandPos
	}
	var rewrites []rewrite
	var tempPos uint64
	w.index.Each(func(key string, pos CommandPos) bool {
		var buf []byte
		buf, err = w.readCommandBytes(pos)
		if err != nil {
			return false
		}
		if _, werr := tempWriter.Write(buf); werr != nil {
			err = ErrIO("writing compacted log", werr)
			return false
		}
		rewrites = append(rewrites, rewrite{key: key, pos: CommandPos{Gen: tempGen, Pos: tempPos, Len: pos.Len}})
		tempPos += pos.Len
		return true
	})
	if err != nil {
		return err
	}
	if err := tempWriter.Flush(); err != nil {
		return ErrIO("flushing compacted log", err)
	}

	for _, rw := range rewrites {
		w.index.Insert(rw.key, rw.pos)
	}

	tempReader, err := w.store.Open(ctx, tempGen)
	if err != nil {
		return err
	}
	w.readers[tempGen] = tempReader
	w.gens.add(tempGen)

	// Commit point: publish the new safe point. Any reader that observes
	// this will, on its next Get, evict stale cached handles (spec §4.7
	// step 4).
	w.safe.Store(tempGen)

	nextWriter, err := w.store.Create(ctx, nextGen)
	if err != nil {
		return err
	}
	nextReader, err := w.store.Open(ctx, nextGen)
	if err != nil {
		return err
	}
	w.readers[nextGen] = nextReader
	w.gens.add(nextGen)

	if err := w.w.Close(); err != nil {
		return ErrIO("closing sealed log", err)
	}
	w.w = nextWriter
	w.currGen = nextGen

	stale := w.gens.below(tempGen)
	for _, gen := range stale {
		if r, ok := w.readers[gen]; ok {
			r.Close()
			delete(w.readers, gen)
		}
		if err := w.store.Delete(ctx, gen); err != nil {
			return err
		}
	}

	w.uncompacted = 0
	w.log.Info("kvsd: compaction %s done (safe_point=%d, reclaimed %d generations)", runID, tempGen, len(stale))
	return nil
}
