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

	"github.com/launix-de/kvsd/engine/snapshot"
)

// indexSource adapts a Reader's index + on-disk values to snapshot.Source.
// Each key's value is re-read through the reader (rather than cached from
// the index, which only tracks positions) so a concurrent compaction never
// hands the exporter a stale file offset.
type indexSource struct {
	ctx context.Context
	r   *Reader
}

func (s indexSource) Each(fn func(key, value string) bool) {
	s.r.index.Each(func(key string, _ CommandPos) bool {
		value, ok, err := s.r.Get(s.ctx, key)
		if err != nil || !ok {
			return true
		}
		return fn(key, value)
	})
}

// Export writes every live key/value pair to w as an xz-compressed stream
// (spec SPEC_FULL.md §4.15).
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	return snapshot.Export(w, indexSource{ctx: ctx, r: e.reader})
}

// Import replays an Export-produced stream from r, issuing one Set per
// record through the normal write path (so compaction and the uncompacted
// byte count stay consistent).
func (e *Engine) Import(ctx context.Context, r io.Reader) error {
	return snapshot.Import(ctx, r, e)
}
