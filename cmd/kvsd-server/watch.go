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

package main

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/launix-de/go-mysqlstack/xlog"

	"github.com/launix-de/kvsd/engine"
)

// dirWatcher warns an operator when something other than the engine's own
// generation/marker files shows up in the data directory, the kind of
// foreign-file mistake spec.md never anticipates but operators make.
type dirWatcher struct {
	w *fsnotify.Watcher
}

func newDirWatcher(dir string) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &dirWatcher{w: w}, nil
}

func (d *dirWatcher) Close() error { return d.w.Close() }

// Run blocks, logging a warning whenever a create/rename event names a file
// that isn't one of the engine's own generation/marker files, until the
// watcher is closed. Every compaction cycle creates legitimate generation
// files, so those are filtered out rather than treated as anomalies.
func (d *dirWatcher) Run(log *xlog.Log) {
	for {
		select {
		case ev, ok := <-d.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 && !engine.IsManagedFileName(filepath.Base(ev.Name)) {
				log.Warning("kvsd-server: unexpected change in data directory: %s", ev.Name)
			}
		case err, ok := <-d.w.Errors:
			if !ok {
				return
			}
			log.Warning("kvsd-server: watch error: %v", err)
		}
	}
}
