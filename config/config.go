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

// Package config implements SPEC_FULL.md §4.12: a JSON-with-comments
// config file overlaid by CLI flags.
package config

import (
	"encoding/json"
	"os"

	"github.com/tailscale/hujson"
)

// Config is the merged server configuration (spec §6.3's CLI surface plus
// the domain-stack additions from SPEC_FULL.md §4.11/§4.16/§4.9a).
type Config struct {
	Addr            string `json:"addr"`
	Engine          string `json:"engine"` // "kvs" (local disk), "s3", or "ceph"
	Dir             string `json:"dir"`
	Workers         int    `json:"workers"`
	CompactionLimit uint64 `json:"compaction_limit_bytes"`
	WireCompression bool   `json:"wire_compression"`
	MonitorAddr     string `json:"monitor_addr"`
	WatchDir        bool   `json:"watch_dir"`

	S3   S3Config   `json:"s3"`
	Ceph CephConfig `json:"ceph"`
}

// S3Config configures the S3-backed GenerationStore (engine/remote/s3store).
type S3Config struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ForcePathStyle  bool   `json:"force_path_style"`
}

// CephConfig configures the RADOS-backed GenerationStore
// (engine/remote/cephstore, built only with the "ceph" build tag).
type CephConfig struct {
	UserName    string `json:"username"`
	ClusterName string `json:"cluster"`
	ConfFile    string `json:"conf_file"`
	Pool        string `json:"pool"`
	Prefix      string `json:"prefix"`
}

// Default returns the baseline configuration from spec §6.3.
func Default() Config {
	return Config{
		Addr:   "127.0.0.1:4000",
		Engine: "kvs",
		Dir:    ".",
	}
}

// Load reads a JSONC file (hujson strips comments and trailing commas
// before standard JSON parsing, the same role it plays for the pack's CLI
// config files) and overlays it onto the defaults. A missing file is not
// an error; Load then just returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	standard, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(standard, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
