//go:build ceph

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
	"github.com/launix-de/kvsd/config"
	"github.com/launix-de/kvsd/engine"
	"github.com/launix-de/kvsd/engine/remote/cephstore"
)

func newCephStore(cfg config.Config) (engine.GenerationStore, error) {
	return cephstore.New(cephstore.Config{
		UserName:    cfg.Ceph.UserName,
		ClusterName: cfg.Ceph.ClusterName,
		ConfFile:    cfg.Ceph.ConfFile,
		Pool:        cfg.Ceph.Pool,
		Prefix:      cfg.Ceph.Prefix,
	}), nil
}
