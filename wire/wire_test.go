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
package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		GetRequest("k"),
		SetRequest("k", "v"),
		RemoveRequest("k"),
		SetRequest("", strings.Repeat("x", 4096)),
	}
	for _, req := range reqs {
		got, err := DecodeRequest(EncodeRequest(req))
		require.NoError(t, err)
		require.Equal(t, req, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resps := []Response{
		GetResponse("v", true),
		GetResponse("", false),
		SetResponse(),
		RemoveResponse(),
		ErrResponse("boom"),
	}
	for _, resp := range resps {
		got, err := DecodeResponse(EncodeResponse(resp))
		require.NoError(t, err)
		require.Equal(t, resp, got)
	}
}

func TestFrameRoundTripUncompressed(t *testing.T) {
	payload := EncodeRequest(SetRequest("hello", "world"))
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload, false))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameRoundTripCompressed(t *testing.T) {
	payload := EncodeRequest(SetRequest("k", strings.Repeat("ab", 10000)))
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload, true))
	require.Less(t, buf.Len(), len(payload), "compressed frame should be smaller on the wire")
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0x7f, 0xff, 0xff, 0xff}
	buf.Write(header)
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}
