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
	"fmt"

	"github.com/launix-de/kvsd/config"
	"github.com/launix-de/kvsd/engine"
	"github.com/launix-de/kvsd/engine/remote/s3store"
)

// backendStore picks the GenerationStore named by cfg.Engine. A nil,nil
// result means "use engine.Open's own local-directory default".
func backendStore(cfg config.Config) (engine.GenerationStore, error) {
	switch cfg.Engine {
	case "", "kvs":
		return nil, nil
	case "s3":
		return s3store.New(s3store.Config{
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		}), nil
	case "ceph":
		return newCephStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported --engine %q", cfg.Engine)
	}
}
