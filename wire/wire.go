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

// Package wire implements the length-delimited request/response protocol
// from SPEC_FULL.md §4.9/§6.2 (C9): every message is a big-endian uint32
// length followed by that many bytes of a deterministic tagged binary
// encoding of a Request or a Response.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	lz4 "github.com/pierrec/lz4/v4"
)

// compressedFlag is the top bit of the u32-BE frame length. Frame payloads
// never approach 2^31 bytes, so this is a safe reserved bit (SPEC_FULL.md
// §4.9a). Peers that never set it see exactly spec.md's baseline framing.
const compressedFlag uint32 = 1 << 31

const maxFrameLen = 64 << 20 // generous sanity bound against malformed length prefixes

type RequestOp uint8

const (
	ReqGet RequestOp = iota + 1
	ReqSet
	ReqRemove
)

// Request mirrors spec §6.2's Request ::= Get | Set | Remove union.
type Request struct {
	Op    RequestOp
	Key   string
	Value string // only meaningful for ReqSet
}

func GetRequest(key string) Request           { return Request{Op: ReqGet, Key: key} }
func SetRequest(key, value string) Request    { return Request{Op: ReqSet, Key: key, Value: value} }
func RemoveRequest(key string) Request        { return Request{Op: ReqRemove, Key: key} }

type ResponseOp uint8

const (
	RespGet ResponseOp = iota + 1
	RespSet
	RespRemove
	RespErr
)

// Response mirrors spec §6.2's Response ::= Get(Option<string>) | Set |
// Remove | Err(string) union. Present is only meaningful for RespGet.
type Response struct {
	Op      ResponseOp
	Value   string
	Present bool
	Err     string
}

func GetResponse(value string, present bool) Response {
	return Response{Op: RespGet, Value: value, Present: present}
}
func SetResponse() Response    { return Response{Op: RespSet} }
func RemoveResponse() Response { return Response{Op: RespRemove} }
func ErrResponse(msg string) Response {
	return Response{Op: RespErr, Err: msg}
}

func putString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	l := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, l)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeRequest serializes req to the deterministic binary form.
func EncodeRequest(req Request) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(req.Op))
	putString(&buf, req.Key)
	if req.Op == ReqSet {
		putString(&buf, req.Value)
	}
	return buf.Bytes()
}

// DecodeRequest parses the bytes produced by EncodeRequest.
func DecodeRequest(payload []byte) (Request, error) {
	r := bytes.NewReader(payload)
	tag, err := r.ReadByte()
	if err != nil {
		return Request{}, fmt.Errorf("wire: empty request")
	}
	op := RequestOp(tag)
	key, err := getString(r)
	if err != nil {
		return Request{}, fmt.Errorf("wire: truncated request key: %w", err)
	}
	req := Request{Op: op, Key: key}
	switch op {
	case ReqGet, ReqRemove:
	case ReqSet:
		value, err := getString(r)
		if err != nil {
			return Request{}, fmt.Errorf("wire: truncated request value: %w", err)
		}
		req.Value = value
	default:
		return Request{}, fmt.Errorf("wire: unknown request op %d", tag)
	}
	return req, nil
}

// EncodeResponse serializes resp to the deterministic binary form.
func EncodeResponse(resp Response) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(resp.Op))
	switch resp.Op {
	case RespGet:
		if resp.Present {
			buf.WriteByte(1)
			putString(&buf, resp.Value)
		} else {
			buf.WriteByte(0)
		}
	case RespSet, RespRemove:
	case RespErr:
		putString(&buf, resp.Err)
	}
	return buf.Bytes()
}

// DecodeResponse parses the bytes produced by EncodeResponse.
func DecodeResponse(payload []byte) (Response, error) {
	r := bytes.NewReader(payload)
	tag, err := r.ReadByte()
	if err != nil {
		return Response{}, fmt.Errorf("wire: empty response")
	}
	op := ResponseOp(tag)
	resp := Response{Op: op}
	switch op {
	case RespGet:
		present, err := r.ReadByte()
		if err != nil {
			return Response{}, fmt.Errorf("wire: truncated response presence flag")
		}
		if present == 1 {
			value, err := getString(r)
			if err != nil {
				return Response{}, fmt.Errorf("wire: truncated response value: %w", err)
			}
			resp.Value = value
			resp.Present = true
		}
	case RespSet, RespRemove:
	case RespErr:
		msg, err := getString(r)
		if err != nil {
			return Response{}, fmt.Errorf("wire: truncated response error: %w", err)
		}
		resp.Err = msg
	default:
		return Response{}, fmt.Errorf("wire: unknown response op %d", tag)
	}
	return resp, nil
}

// WriteFrame writes payload as one length-delimited frame. When compress is
// true, payload is lz4-compressed first and the top bit of the length
// prefix is set (SPEC_FULL.md §4.9a); peers that don't understand the flag
// are never sent one, since compression is only ever negotiated locally by
// the caller.
func WriteFrame(w io.Writer, payload []byte, compress bool) error {
	out := payload
	length := uint32(len(payload))
	if compress {
		bound := lz4.CompressBlockBound(len(payload))
		compressed := make([]byte, 4+bound)
		binary.BigEndian.PutUint32(compressed[:4], uint32(len(payload)))
		var c lz4.Compressor
		n, err := c.CompressBlock(payload, compressed[4:])
		if err == nil && n > 0 && n+4 < len(payload) {
			out = compressed[:4+n]
			length = uint32(len(out)) | compressedFlag
		}
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], length)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(out)
	return err
}

// ReadFrame reads one length-delimited frame and transparently decompresses
// it if the sender set the compression flag. lz4 block decompression needs
// the original length, so the protocol carries it by prefixing the
// compressed payload with its own 4-byte big-endian original length.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	raw := binary.BigEndian.Uint32(header[:])
	compressed := raw&compressedFlag != 0
	length := raw &^ compressedFlag
	if length > maxFrameLen {
		return nil, fmt.Errorf("wire: frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if !compressed {
		return payload, nil
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("wire: compressed frame missing original-length prefix")
	}
	origLen := binary.BigEndian.Uint32(payload[:4])
	dst := make([]byte, origLen)
	n, err := lz4.UncompressBlock(payload[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("wire: lz4 decompress: %w", err)
	}
	return dst[:n], nil
}
