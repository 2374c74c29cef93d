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

// Command kvsd-client is the interactive REPL front-end from
// SPEC_FULL.md §4.14 (C14): get/set/remove typed at a prompt, dispatched
// one request per line over the wire protocol.
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"github.com/launix-de/kvsd/wire"
)

const prompt = "\033[32mkvsd>\033[0m "

func main() {
	addr := pflag.String("addr", "127.0.0.1:4000", "kvsd-server address")
	compress := pflag.Bool("compress", false, "lz4-compress outgoing frames")
	pflag.Parse()

	// Each request gets its own connection: the server dispatches exactly
	// one request per connection (SPEC_FULL.md §4.10), so the REPL redials
	// for every command rather than pipelining on one socket.
	if conn, err := net.DialTimeout("tcp", *addr, 5*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, "kvsd-client:", err)
		os.Exit(1)
	} else {
		conn.Close()
	}
	fmt.Printf("connected to %s\n", *addr)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".kvsd-client-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvsd-client:", err)
		os.Exit(1)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			fmt.Fprintln(os.Stderr, "kvsd-client:", err)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		req, err := parseCommand(line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		resp, err := roundTrip(*addr, req, *compress)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		printResponse(resp)
	}
}

func parseCommand(line string) (wire.Request, error) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "get":
		if len(fields) != 2 {
			return wire.Request{}, fmt.Errorf("usage: get <key>")
		}
		return wire.GetRequest(fields[1]), nil
	case "set":
		if len(fields) < 3 {
			return wire.Request{}, fmt.Errorf("usage: set <key> <value>")
		}
		return wire.SetRequest(fields[1], strings.Join(fields[2:], " ")), nil
	case "remove", "rm", "del":
		if len(fields) != 2 {
			return wire.Request{}, fmt.Errorf("usage: remove <key>")
		}
		return wire.RemoveRequest(fields[1]), nil
	default:
		return wire.Request{}, fmt.Errorf("unknown command %q (try get, set, remove, quit)", fields[0])
	}
}

func roundTrip(addr string, req wire.Request, compress bool) (wire.Response, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return wire.Response{}, err
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.EncodeRequest(req), compress); err != nil {
		return wire.Response{}, err
	}
	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.DecodeResponse(payload)
}

func printResponse(resp wire.Response) {
	switch resp.Op {
	case wire.RespGet:
		if resp.Present {
			fmt.Println(resp.Value)
		} else {
			fmt.Println("(not found)")
		}
	case wire.RespSet, wire.RespRemove:
		fmt.Println("ok")
	case wire.RespErr:
		fmt.Println("error:", resp.Err)
	}
}
