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
	readmap "github.com/launix-de/NonLockingReadMap"
)

// CommandPos locates the live Set command for a key, per spec §3.2.
type CommandPos struct {
	Gen uint64
	Pos uint64
	Len uint64
}

// indexEntry adapts CommandPos to NonLockingReadMap's KeyGetter contract.
type indexEntry struct {
	key string
	pos CommandPos
}

func (e *indexEntry) GetKey() string { return e.key }

// ComputeSize is an approximation used only by the map's own bookkeeping;
// it never affects correctness.
func (e *indexEntry) ComputeSize() uint { return uint(len(e.key)) + 32 }

// Index is the concurrent key -> CommandPos map from spec §4.4. It is a
// thin wrapper over the lock-free, read-optimized map the teacher vendors
// (NonLockingReadMap): reads are wait-free binary searches over an
// immutable slice; writes are a CAS-retry loop. Because spec §5 serializes
// all mutation through one writer mutex, the write side is never actually
// contended, which is exactly the access pattern that map is designed for.
type Index struct {
	m readmap.NonLockingReadMap[indexEntry, string]
}

func NewIndex() *Index {
	return &Index{m: readmap.New[indexEntry, string]()}
}

// Get returns a snapshot of the position for key, or ok=false if absent.
func (idx *Index) Get(key string) (CommandPos, bool) {
	e := idx.m.Get(key)
	if e == nil {
		return CommandPos{}, false
	}
	return e.pos, true
}

// Insert stores pos for key, returning the previous position if one was
// displaced.
func (idx *Index) Insert(key string, pos CommandPos) (CommandPos, bool) {
	old := idx.m.Set(&indexEntry{key: key, pos: pos})
	if old == nil {
		return CommandPos{}, false
	}
	return old.pos, true
}

// Remove deletes key from the index, returning the removed position if
// present.
func (idx *Index) Remove(key string) (CommandPos, bool) {
	old := idx.m.Remove(key)
	if old == nil {
		return CommandPos{}, false
	}
	return old.pos, true
}

// Len reports the number of live keys.
func (idx *Index) Len() int { return len(idx.m.GetAll()) }

// Each iterates over a snapshot of all entries, stopping as soon as fn
// returns false. Only the compactor, running under the writer's mutex, and
// the snapshot exporter call this (spec §4.4 "iteration ... used only
// during compaction").
func (idx *Index) Each(fn func(key string, pos CommandPos) bool) {
	for _, e := range idx.m.GetAll() {
		if !fn(e.key, e.pos) {
			return
		}
	}
}
