// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config resolves filesystem locations used by quarry.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the data directory.
const DataDirEnv = "QUARRY_DATA_DIR"

// GetDataDir returns the quarry data directory: $QUARRY_DATA_DIR when set,
// otherwise ~/.quarry. Tilde and relative paths are expanded to absolute
// paths.
//
// This runs before the config file is loaded (it is where the config file
// is searched for), so it reads the environment directly rather than viper.
//
//	QUARRY_DATA_DIR=~/q        -> /home/user/q
//	QUARRY_DATA_DIR unset      -> /home/user/.quarry
func GetDataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return ExpandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".quarry"
	}
	return filepath.Join(homeDir, ".quarry")
}

// GetSubDir returns a directory under the data directory, e.g. "catalog".
func GetSubDir(subdir string) string {
	return filepath.Join(GetDataDir(), subdir)
}

// DefaultKnowledgeDSN is the sqlite file holding learnings and patterns.
func DefaultKnowledgeDSN() string {
	return filepath.Join(GetDataDir(), "knowledge.db")
}

// ExpandPath expands a leading ~ and makes path absolute.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
