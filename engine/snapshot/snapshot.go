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

// Package snapshot implements SPEC_FULL.md §4.15 (C15): a point-in-time
// export of every live key to an xz-compressed stream, and the matching
// import, grounded on the teacher's own xz pipe-writer pattern
// (scm/streams.go's "xz"/"xzcat" stream builtins).
package snapshot

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/ulikunitz/xz"
)

// Source is the read side of a snapshot export: every live key/value pair,
// iterated in index order.
type Source interface {
	Each(fn func(key, value string) bool)
}

// Sink is the write side of a snapshot import.
type Sink interface {
	Set(ctx context.Context, key, value string) error
}

// Export streams every (key, value) pair in src through an xz compressor
// into w. Each record is a pair of uint32-BE-length-prefixed strings, the
// same framing convention the wire protocol and on-disk log already use.
func Export(w io.Writer, src Source) error {
	bw := bufio.NewWriterSize(w, 16*1024)
	zw, err := xz.NewWriter(bw)
	if err != nil {
		return err
	}

	var walkErr error
	src.Each(func(key, value string) bool {
		if walkErr = writeRecord(zw, key, value); walkErr != nil {
			return false
		}
		return true
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// Import reads an Export-produced stream from r and replays every record
// into dst via Set, in file order.
func Import(ctx context.Context, r io.Reader, dst Sink) error {
	zr, err := xz.NewReader(r)
	if err != nil {
		return err
	}
	for {
		key, value, err := readRecord(zr)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := dst.Set(ctx, key, value); err != nil {
			return err
		}
	}
}

func writeRecord(w io.Writer, key, value string) error {
	if err := writeString(w, key); err != nil {
		return err
	}
	return writeString(w, value)
}

func writeString(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readRecord(r io.Reader) (key, value string, err error) {
	key, err = readString(r)
	if err != nil {
		return "", "", err
	}
	value, err = readString(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", "", err
	}
	return key, value, nil
}

func readString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}
