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
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kvsd-engine-test-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func openTest(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := Open(context.Background(), dir, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// S1: basic round-trip, including across a reopen.
func TestBasicRoundTrip(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()

	e := openTest(t, dir)
	require.NoError(t, e.Set(ctx, "k1", "v1"))
	require.NoError(t, e.Set(ctx, "k2", "v2"))

	v, ok, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	v, ok, err = e.Get(ctx, "k2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	require.NoError(t, e.Close())

	e2 := openTest(t, dir)
	v, ok, err = e2.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)
}

// S2: overwrite, persisted across reopen.
func TestOverwriteAndPersist(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()

	e := openTest(t, dir)
	require.NoError(t, e.Set(ctx, "k1", "v1"))
	require.NoError(t, e.Set(ctx, "k1", "v2"))

	v, ok, err := e.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
	require.NoError(t, e.Close())

	e2 := openTest(t, dir)
	v, ok, err = e2.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

// S3: missing key behavior on an empty store.
func TestMissingKey(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()
	e := openTest(t, dir)

	_, ok, err := e.Get(ctx, "x")
	require.NoError(t, err)
	require.False(t, ok)

	err = e.Remove(ctx, "x")
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, KeyNotFound, kerr.Kind)
}

// Property 4: remove-missing produces no log record / uncompacted change.
func TestRemoveMissingProducesNoRecord(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()
	e := openTest(t, dir)

	require.NoError(t, e.Set(ctx, "k", "v"))
	before := e.shared.writer.uncompacted
	beforePos := e.shared.writer.w.Pos()

	err := e.Remove(ctx, "missing")
	require.Error(t, err)
	require.Equal(t, before, e.shared.writer.uncompacted)
	require.Equal(t, beforePos, e.shared.writer.w.Pos())
}

// S4: remove then get, persisted across reopen.
func TestRemoveThenGet(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()
	e := openTest(t, dir)

	require.NoError(t, e.Set(ctx, "k", "v"))
	require.NoError(t, e.Remove(ctx, "k"))

	_, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, e.Close())

	e2 := openTest(t, dir)
	_, ok, err = e2.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func dirSize(t *testing.T, dir string) int64 {
	t.Helper()
	var total int64
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		info, err := entry.Info()
		require.NoError(t, err)
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total
}

// S5: compaction triggers and shrinks, and survives a reopen.
func TestCompactionShrinksAndPersists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping compaction stress test in -short mode")
	}
	dir := tempDir(t)
	ctx := context.Background()
	e, err := Open(ctx, dir, Options{CompactionLimit: 4096})
	require.NoError(t, err)

	const ids = 200
	shrank := false
	var prevSize int64
	lastIter := 0
	for iter := 0; iter < 300; iter++ {
		lastIter = iter
		for id := 0; id < ids; id++ {
			key := fmt.Sprintf("key%d", id)
			val := fmt.Sprintf("%d", iter)
			require.NoError(t, e.Set(ctx, key, val))
		}
		size := dirSize(t, dir)
		if prevSize > 0 && size < prevSize {
			shrank = true
		}
		prevSize = size
		if shrank {
			break
		}
	}
	require.True(t, shrank, "expected on-disk size to shrink after compaction")
	require.NoError(t, e.Close())

	e2, err := Open(ctx, dir, Options{CompactionLimit: 4096})
	require.NoError(t, err)
	defer e2.Close()
	for id := 0; id < ids; id++ {
		key := fmt.Sprintf("key%d", id)
		v, ok, err := e2.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("%d", lastIter), v)
	}
}

// S6: concurrent writers from many goroutines, verified after a reopen
// with a single worker.
func TestConcurrentSet(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()
	e, err := Open(ctx, dir, Options{Concurrency: 8})
	require.NoError(t, err)

	const n = 2000
	var wg sync.WaitGroup
	sem := make(chan struct{}, 64)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			require.NoError(t, e.Set(ctx, fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
		}()
	}
	wg.Wait()
	require.NoError(t, e.Close())

	e2, err := Open(ctx, dir, Options{Concurrency: 1})
	require.NoError(t, err)
	defer e2.Close()
	for i := 0; i < n; i++ {
		v, ok, err := e2.Get(ctx, fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("value%d", i), v)
	}
}

func TestEngineCloneIndependentReaderCache(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()
	e := openTest(t, dir)
	require.NoError(t, e.Set(ctx, "k", "v"))

	clone := e.Clone()
	v, ok, err := clone.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.NoError(t, clone.Close())

	// Original handle must still work after the clone closes.
	v, ok, err = e.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestWrongEngineMarker(t *testing.T) {
	dir := tempDir(t)
	ctx := context.Background()
	e := openTest(t, dir)
	require.NoError(t, e.Set(ctx, "k", "v"))
	require.NoError(t, e.Close())

	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.WriteMarker("btree"))

	_, err = Open(ctx, dir, Options{})
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, WrongEngine, kerr.Kind)
}
