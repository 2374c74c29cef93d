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
package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/launix-de/go-mysqlstack/xlog"
	"github.com/stretchr/testify/require"

	"github.com/launix-de/kvsd/wire"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string]string)} }

func (f *fakeStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return &notFoundErr{key}
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type notFoundErr struct{ key string }

func (e *notFoundErr) Error() string { return "key not found: " + e.key }

func startTestServer(t *testing.T, store Store) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	log := xlog.NewStdLog(xlog.Level(xlog.ERROR))
	srv := New(ln, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	return ln.Addr().String(), func() {
		cancel()
		<-done
	}
}

func roundTrip(t *testing.T, addr string, req wire.Request) wire.Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, wire.WriteFrame(conn, wire.EncodeRequest(req), false))
	payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(payload)
	require.NoError(t, err)
	return resp
}

func TestServerSetGetRemove(t *testing.T) {
	store := newFakeStore()
	addr, stop := startTestServer(t, store)
	defer stop()

	resp := roundTrip(t, addr, wire.SetRequest("k", "v"))
	require.Equal(t, wire.RespSet, resp.Op)

	resp = roundTrip(t, addr, wire.GetRequest("k"))
	require.Equal(t, wire.RespGet, resp.Op)
	require.True(t, resp.Present)
	require.Equal(t, "v", resp.Value)

	resp = roundTrip(t, addr, wire.RemoveRequest("k"))
	require.Equal(t, wire.RespRemove, resp.Op)

	resp = roundTrip(t, addr, wire.GetRequest("k"))
	require.False(t, resp.Present)

	resp = roundTrip(t, addr, wire.RemoveRequest("missing"))
	require.Equal(t, wire.RespErr, resp.Op)
}

func TestServerBadRequest(t *testing.T) {
	store := newFakeStore()
	addr, stop := startTestServer(t, store)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, []byte{0xff}, false))
	payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(payload)
	require.NoError(t, err)
	require.Equal(t, wire.RespErr, resp.Op)
}

func TestServerGracefulShutdown(t *testing.T) {
	store := newFakeStore()
	addr, stop := startTestServer(t, store)

	roundTrip(t, addr, wire.SetRequest("k", "v"))
	stop()

	_, err := net.DialTimeout("tcp", addr, time.Second)
	require.Error(t, err)
}
