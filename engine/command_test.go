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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCommandStreamDecode(t *testing.T) {
	cmds := []Command{
		SetCommand("hello", "world"),
		RemoveCommand("hello"),
		SetCommand("", "empty key"),
		SetCommand("unicode-key-éè", "unicode-value-中文"),
	}

	var buf bytes.Buffer
	for _, c := range cmds {
		buf.Write(c.Encode())
	}

	r := bytes.NewReader(buf.Bytes())
	for _, want := range cmds {
		before := int(r.Size()) - r.Len()
		got, n, err := DecodeCommand(r)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("decoded command mismatch (-want +got):\n%s", diff)
		}
		require.Equal(t, len(want.Encode()), n)
		_ = before
	}
}

func TestDecodeCommandTruncatedTrailer(t *testing.T) {
	full := SetCommand("k", "v").Encode()
	truncated := full[:len(full)-1]
	_, _, err := DecodeCommand(bytes.NewReader(truncated))
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, SerializationError, kerr.Kind)
}
