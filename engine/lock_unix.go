//go:build unix

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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockDataDir takes an advisory exclusive flock on <dir>/.lock for the
// lifetime of the process (SPEC_FULL.md §5), guarding the single-writer
// invariant against a second kvsd-server process opening the same
// directory. It is released by calling the returned func, or automatically
// by the OS when the file descriptor is closed/the process exits.
func lockDataDir(dir string) (func() error, error) {
	f, err := os.OpenFile(filepath.Join(dir, ".lock"), os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, ErrIO("opening lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, newErr(IoError, "data directory is already locked by another process", err)
	}
	return func() error {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return f.Close()
	}, nil
}
