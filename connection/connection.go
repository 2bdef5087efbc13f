// Package connection creates database connections from a database name or a
// full connection string.
package connection

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"

	"github.com/deep-rent/ormconf/resolve"
)

// DefaultBase is the connection string the default factory extends with a
// database name.
const DefaultBase = "host=localhost sslmode=disable"

// Factory creates a connection for a database name or connection string.
type Factory interface {
	CreateConnection(nameOrConnectionString string) (*sql.DB, error)
}

// Service is the tag of the default connection Factory.
var Service = resolve.NewService[Factory]("default connection factory")

// Postgres is a Factory for PostgreSQL servers.
type Postgres struct {
	base string
}

// NewPostgres returns a factory deriving connection strings from base,
// which may be a key/value DSN or a postgres:// URL. If base is empty,
// DefaultBase is used.
func NewPostgres(base string) *Postgres {
	if strings.TrimSpace(base) == "" {
		base = DefaultBase
	}
	return &Postgres{base: base}
}

// Base returns the base connection string.
func (p *Postgres) Base() string { return p.base }

// IsConnectionString reports whether s is a full connection string rather
// than a bare database name.
func IsConnectionString(s string) bool {
	return strings.Contains(s, "=") || isURL(s)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// DSN returns the connection string used for nameOrConnectionString.
func (p *Postgres) DSN(nameOrConnectionString string) (string, error) {
	s := strings.TrimSpace(nameOrConnectionString)
	if s == "" {
		return "", fmt.Errorf("database name or connection string must not be empty")
	}
	if IsConnectionString(s) {
		return s, nil
	}
	if isURL(p.base) {
		u, err := url.Parse(p.base)
		if err != nil {
			return "", fmt.Errorf("parse base connection string: %w", err)
		}
		u.Path = "/" + s
		return u.String(), nil
	}
	return p.base + " dbname=" + quote(s), nil
}

// CreateConnection implements Factory. The connection is not opened until
// first use.
func (p *Postgres) CreateConnection(nameOrConnectionString string) (*sql.DB, error) {
	dsn, err := p.DSN(nameOrConnectionString)
	if err != nil {
		return nil, err
	}
	c, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	return sql.OpenDB(c), nil
}

var _ Factory = (*Postgres)(nil)

// quote escapes a value of a key/value connection string.
func quote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
