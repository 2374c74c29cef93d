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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	srcDir := tempDir(t)
	src := openTest(t, srcDir)
	require.NoError(t, src.Set(ctx, "a", "1"))
	require.NoError(t, src.Set(ctx, "b", "2"))
	require.NoError(t, src.Remove(ctx, "a"))
	require.NoError(t, src.Set(ctx, "c", "3"))

	var buf bytes.Buffer
	require.NoError(t, src.Export(ctx, &buf))

	dstDir := tempDir(t)
	dst := openTest(t, dstDir)
	require.NoError(t, dst.Import(ctx, &buf))

	_, ok, err := dst.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := dst.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", v)

	v, ok, err = dst.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", v)
}
