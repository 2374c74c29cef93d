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
package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/launix-de/go-mysqlstack/xlog"
	"github.com/stretchr/testify/require"
)

func TestHandleStatsPushesSnapshot(t *testing.T) {
	log := xlog.NewStdLog(xlog.Level(xlog.ERROR))
	snap := func() Snapshot { return Snapshot{Keys: 3, Uncompacted: 42, Generation: 7} }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleStats(w, r, snap, log)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got Snapshot
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, Snapshot{Keys: 3, Uncompacted: 42, Generation: 7}, got)
}
