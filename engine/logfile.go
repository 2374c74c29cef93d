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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/btree"
	natomic "github.com/natefinch/atomic"
)

// GenerationStore is the storage-backend abstraction point described in
// SPEC_FULL.md §4.11. The writer, reader, and compactor only ever talk to
// this interface, never to os.* directly, so a directory of local files
// (the default, and the only backend spec.md's invariants are written
// against) can be swapped for engine/remote/s3store or
// engine/remote/cephstore without touching §4.5-§4.7 logic.
type GenerationStore interface {
	List(ctx context.Context) ([]uint64, error)
	Create(ctx context.Context, gen uint64) (PositionedWriter, error)
	Open(ctx context.Context, gen uint64) (PositionedReader, error)
	Delete(ctx context.Context, gen uint64) error
	// WriteMarker durably records the engine name that owns this store,
	// per spec §6.1's optional "<dir>/engine" marker.
	WriteMarker(name string) error
	ReadMarker() (string, bool, error)
}

// localStore implements GenerationStore against a plain filesystem
// directory, exactly as spec §4.1 describes: `<dir>/<gen>` files named by a
// base-10 uint64 with no extension.
type localStore struct {
	dir string
}

func NewLocalStore(dir string) (GenerationStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, ErrIO("creating data directory", err)
	}
	return &localStore{dir: dir}, nil
}

func (s *localStore) path(gen uint64) string {
	return filepath.Join(s.dir, strconv.FormatUint(gen, 10))
}

func (s *localStore) List(ctx context.Context) ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ErrIO("listing data directory", err)
	}
	gens := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		// Foreign files without an all-digit name are ignored (spec §4.1).
		gen, ok := ParseGenerationFileName(e.Name())
		if !ok {
			continue
		}
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}

// EngineMarkerFileName is the name localStore.WriteMarker/ReadMarker use for
// the optional "<dir>/engine" marker (spec §6.1).
const EngineMarkerFileName = "engine"

// ParseGenerationFileName reports whether name is a generation file's name
// (a base-10 uint64 with no extension, spec §4.1) and returns its generation
// number.
func ParseGenerationFileName(name string) (uint64, bool) {
	gen, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// IsManagedFileName reports whether name is a file the engine itself owns in
// the data directory: a generation file or the engine marker. Anything else
// (spec §4.1's "foreign file") is the operator's own mistake, not the
// engine's doing.
func IsManagedFileName(name string) bool {
	if name == EngineMarkerFileName {
		return true
	}
	_, ok := ParseGenerationFileName(name)
	return ok
}

func (s *localStore) Create(ctx context.Context, gen uint64) (PositionedWriter, error) {
	f, err := os.OpenFile(s.path(gen), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, ErrIO("creating log file", err)
	}
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, ErrIO("seeking to end of new log file", err)
	}
	return newFileWriter(f, uint64(pos)), nil
}

func (s *localStore) Open(ctx context.Context, gen uint64) (PositionedReader, error) {
	f, err := os.Open(s.path(gen))
	if err != nil {
		return nil, ErrIO("opening log file", err)
	}
	return newFileReader(f), nil
}

func (s *localStore) Delete(ctx context.Context, gen uint64) error {
	if err := os.Remove(s.path(gen)); err != nil && !os.IsNotExist(err) {
		return ErrIO("deleting log file", err)
	}
	return nil
}

func (s *localStore) WriteMarker(name string) error {
	return natomic.WriteFile(filepath.Join(s.dir, EngineMarkerFileName), strings.NewReader(name))
}

func (s *localStore) ReadMarker() (string, bool, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, EngineMarkerFileName))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrIO("reading engine marker", err)
	}
	return string(b), true, nil
}

// generationSet keeps the writer's live generations in an ordered btree so
// compaction's "delete everything below the safe point" step (spec §4.7
// step 6) is a range descent instead of re-sorting a fresh directory
// listing on every compaction. The directory (or remote store) listing
// taken at Open remains the source of truth; this is a write-path cache.
type generationSet struct {
	t *btree.BTreeG[uint64]
}

func newGenerationSet(gens []uint64) *generationSet {
	t := btree.NewG(32, func(a, b uint64) bool { return a < b })
	for _, g := range gens {
		t.ReplaceOrInsert(g)
	}
	return &generationSet{t: t}
}

func (g *generationSet) add(gen uint64)    { g.t.ReplaceOrInsert(gen) }
func (g *generationSet) remove(gen uint64) { g.t.Delete(gen) }

// below returns every tracked generation strictly less than limit, removing
// them from the set.
func (g *generationSet) below(limit uint64) []uint64 {
	var out []uint64
	g.t.Ascend(func(gen uint64) bool {
		if gen >= limit {
			return false
		}
		out = append(out, gen)
		return true
	})
	for _, gen := range out {
		g.t.Delete(gen)
	}
	return out
}

func (g *generationSet) min() (uint64, bool) {
	return g.t.Min()
}
