// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package manifest determines the provider manifest token of a database
// server. The token is the server version normalized to a canonical semantic
// version, so that callers can compare server capabilities:
//
//	tok, err := r.ResolveManifestToken(ctx, db)
//	if manifest.AtLeast(tok, "v13") {
//		// use features introduced in PostgreSQL 13
//	}
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/singleflight"

	"github.com/deep-rent/ormconf/resolve"
)

// Resolver determines the manifest token of the server behind db.
type Resolver interface {
	ResolveManifestToken(ctx context.Context, db *sql.DB) (string, error)
}

// Service is the tag of the Resolver service.
var Service = resolve.NewService[Resolver]("manifest token resolver")

// ErrInvalidVersion indicates a server version that cannot be normalized.
var ErrInvalidVersion = errors.New("invalid server version")

var leading = regexp.MustCompile(`^\s*v?(\d+(?:\.\d+){0,2})`)

// Normalize turns a server version string such as "16.2 (Debian 16.2-1)"
// into a canonical semantic version ("v16.2.0").
func Normalize(version string) (string, error) {
	m := leading.FindStringSubmatch(version)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	v := "v" + m[1]
	if !semver.IsValid(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return semver.Canonical(v), nil
}

// AtLeast reports whether token is a valid version not older than min.
func AtLeast(token, min string) bool {
	return semver.IsValid(token) && semver.Compare(token, min) >= 0
}

// Major returns the major version of token, e.g. "v16".
func Major(token string) string {
	return semver.Major(token)
}

// Query reads the raw server version from db.
type Query func(ctx context.Context, db *sql.DB) (string, error)

// ShowServerVersion is the default Query for PostgreSQL.
func ShowServerVersion(ctx context.Context, db *sql.DB) (string, error) {
	var v string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&v); err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return v, nil
}

// Caching is the default Resolver. It queries each database handle once;
// concurrent requests for the same handle share a single query. Failures
// are not cached.
type Caching struct {
	query  Query
	group  singleflight.Group
	mu     sync.RWMutex
	tokens map[*sql.DB]string
}

// NewCaching creates a caching resolver. If query is nil, ShowServerVersion
// is used.
func NewCaching(query Query) *Caching {
	if query == nil {
		query = ShowServerVersion
	}
	return &Caching{
		query:  query,
		tokens: make(map[*sql.DB]string),
	}
}

// ResolveManifestToken implements Resolver.
func (c *Caching) ResolveManifestToken(ctx context.Context, db *sql.DB) (string, error) {
	if db == nil {
		return "", errors.New("database handle must not be nil")
	}
	c.mu.RLock()
	tok, ok := c.tokens[db]
	c.mu.RUnlock()
	if ok {
		return tok, nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%p", db), func() (any, error) {
		c.mu.RLock()
		tok, ok := c.tokens[db]
		c.mu.RUnlock()
		if ok {
			return tok, nil
		}
		raw, err := c.query(ctx, db)
		if err != nil {
			return "", err
		}
		tok, err = Normalize(raw)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.tokens[db] = tok
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forget drops the cached token of db.
func (c *Caching) Forget(db *sql.DB) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, db)
}

var _ Resolver = (*Caching)(nil)
