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

// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3". CGO builds use go-sqlcipher, which can encrypt the knowledge
// database. Builds without CGO use the pure-Go modernc.org/sqlite driver,
// which has no encryption.
//
// Import this package for its side effects, or call DSN to build a
// connection string with an encryption key:
//
//	import _ "github.com/quarrydata/quarry/internal/sqlitedriver"
package sqlitedriver

import (
	"errors"
	"net/url"
	"strings"
)

// ErrEncryptionUnsupported is returned by DSN when a key is given but the
// binary was built without CGO.
var ErrEncryptionUnsupported = errors.New("sqlite encryption requires a cgo build")

// DSN returns a connection string for path. A non-empty key opens the
// database through SQLCipher.
func DSN(path, key string) (string, error) {
	if key == "" {
		return path, nil
	}
	if !EncryptionSupported {
		return "", ErrEncryptionUnsupported
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma_key=" + url.QueryEscape(key) + "&_pragma_cipher_page_size=4096", nil
}

// IsMemory reports whether dsn names an in-memory database, which exists
// per connection and so needs a single-connection pool.
func IsMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
