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

// Stats is a point-in-time sample of engine state, consumed by
// server/monitor's websocket endpoint.
type Stats struct {
	Keys        int
	Uncompacted uint64
	Generation  uint64
}

// Stats reports the live key count, the writer's pending-compaction byte
// count, and the current active generation.
func (e *Engine) Stats() Stats {
	w := e.shared.writer
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Keys:        e.reader.index.Len(),
		Uncompacted: w.uncompacted,
		Generation:  w.currGen,
	}
}
