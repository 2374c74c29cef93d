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

// Package server implements the TCP accept loop and connection dispatch
// from SPEC_FULL.md §4.10 (C10): one request per connection in the
// baseline, each connection handled on its own goroutine, with graceful
// shutdown.
package server

import (
	"context"
	"net"
	"sync"

	"github.com/launix-de/go-mysqlstack/xlog"

	"github.com/launix-de/kvsd/engine"
	"github.com/launix-de/kvsd/wire"
)

// EngineStore adapts *engine.Engine to the Store/Cloner interfaces below.
// engine.Engine.Clone returns a concrete *engine.Engine (spec §4.8's
// façade), so this thin wrapper is what lets the server treat any Store
// uniformly, without the server's dispatch code depending on
// engine.Engine's concrete Clone signature.
type EngineStore struct{ *engine.Engine }

func (e EngineStore) Clone() Store { return EngineStore{e.Engine.Clone()} }

var _ Store = EngineStore{}
var _ Cloner = EngineStore{}

// Store is the subset of engine.Engine the server needs. A separate,
// per-connection-clonable handle (spec §4.6 "cloning a reader creates a
// fresh empty cache") keeps one slow reader from pinning file handles for
// every other connection.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
	Close() error
}

// Cloner is implemented by stores that support cheap per-connection clones
// (engine.Engine does). Stores that don't are used directly by every
// connection.
type Cloner interface {
	Clone() Store
}

// Server accepts connections on a listener and dispatches one handler
// goroutine per connection, each of which reads exactly one framed request
// and writes one framed response (spec §4.10).
type Server struct {
	ln    net.Listener
	store Store
	log   *xlog.Log

	wg sync.WaitGroup
}

func New(ln net.Listener, store Store, log *xlog.Log) *Server {
	return &Server{ln: ln, store: store, log: log}
}

// Run implements spec §4.10 step 2-3: accept connections and dispatch
// handlers until ctx is cancelled, then stop accepting (already-dispatched
// handlers finish on their own).
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				s.log.Error("kvsd: accept error: %v", err)
				return err
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	store := s.store
	if cloner, ok := store.(Cloner); ok {
		clone := cloner.Clone()
		store = clone
		defer clone.Close()
	}

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		wire.WriteFrame(conn, wire.EncodeResponse(wire.ErrResponse("bad request")), false)
		return
	}
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		wire.WriteFrame(conn, wire.EncodeResponse(wire.ErrResponse("bad request")), false)
		return
	}

	resp := s.dispatch(ctx, store, req)
	if err := wire.WriteFrame(conn, wire.EncodeResponse(resp), false); err != nil {
		s.log.Error("kvsd: writing response: %v", err)
	}
}

func (s *Server) dispatch(ctx context.Context, store Store, req wire.Request) wire.Response {
	switch req.Op {
	case wire.ReqGet:
		value, ok, err := store.Get(ctx, req.Key)
		if err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.GetResponse(value, ok)
	case wire.ReqSet:
		if err := store.Set(ctx, req.Key, req.Value); err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.SetResponse()
	case wire.ReqRemove:
		if err := store.Remove(ctx, req.Key); err != nil {
			return wire.ErrResponse(err.Error())
		}
		return wire.RemoveResponse()
	default:
		return wire.ErrResponse("unknown request op")
	}
}
