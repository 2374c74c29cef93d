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
package snapshot

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pairs [][2]string
}

func (f fakeSource) Each(fn func(key, value string) bool) {
	for _, p := range f.pairs {
		if !fn(p[0], p[1]) {
			return
		}
	}
}

type fakeSink struct {
	got map[string]string
}

func (f *fakeSink) Set(ctx context.Context, key, value string) error {
	f.got[key] = value
	return nil
}

func TestExportImportRoundTrip(t *testing.T) {
	src := fakeSource{pairs: [][2]string{
		{"a", "1"},
		{"b", "2"},
		{"c", ""},
	}}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, src))

	sink := &fakeSink{got: map[string]string{}}
	require.NoError(t, Import(context.Background(), &buf, sink))

	require.Equal(t, map[string]string{"a": "1", "b": "2", "c": ""}, sink.got)
}
