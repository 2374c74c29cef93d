//go:build !unix

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

// lockDataDir is a no-op on non-unix platforms; flock has no portable
// equivalent in the stdlib, and golang.org/x/sys only exercises the unix
// build (see lock_unix.go).
func lockDataDir(dir string) (func() error, error) {
	return func() error { return nil }, nil
}
