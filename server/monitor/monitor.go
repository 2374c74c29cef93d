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

// Package monitor implements SPEC_FULL.md §4.16 (C16): a websocket endpoint
// that pushes a JSON stats snapshot once a second, grounded on the
// teacher's own "websocket" scm builtin (gorilla/websocket upgrade plus a
// goroutine read loop to notice the client going away).
package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/launix-de/go-mysqlstack/xlog"
)

// Snapshot is one point-in-time sample, pushed to every connected client.
type Snapshot struct {
	Keys        int    `json:"keys"`
	Uncompacted uint64 `json:"uncompacted_bytes"`
	Generation  uint64 `json:"current_generation"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve blocks, running an HTTP server on addr whose "/stats" route upgrades
// to a websocket and streams the result of calling snapshot once a second
// until the client disconnects. snapshot is a callback rather than an
// interface so this package never needs to import the engine it monitors.
func Serve(addr string, snapshot func() Snapshot, log *xlog.Log) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		handleStats(w, r, snapshot, log)
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	log.Info("kvsd monitor: listening on %s", addr)
	return srv.ListenAndServe()
}

func handleStats(w http.ResponseWriter, r *http.Request, snapshot func() Snapshot, log *xlog.Log) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warning("kvsd monitor: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			payload, err := json.Marshal(snapshot())
			if err != nil {
				log.Warning("kvsd monitor: marshal snapshot: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
