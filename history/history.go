// Package history describes where migration history is stored.
package history

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/deep-rent/ormconf/resolve"
)

// Defaults of a history Context.
const (
	DefaultSchema = "public"
	DefaultTable  = "__MigrationHistory"
)

// Context locates the migration history table of a database.
type Context struct {
	DB     *sql.DB
	Schema string
	Table  string
}

// Factory creates the history context for a connection and its default
// schema.
type Factory func(db *sql.DB, defaultSchema string) *Context

// Service is the tag of the Factory service. The key is the invariant name
// of the provider, or nil to request the default factory.
var Service = resolve.NewService[Factory]("history context factory")

// NewContext is the default Factory.
func NewContext(db *sql.DB, defaultSchema string) *Context {
	if strings.TrimSpace(defaultSchema) == "" {
		defaultSchema = DefaultSchema
	}
	return &Context{DB: db, Schema: defaultSchema, Table: DefaultTable}
}

// QualifiedTable returns the quoted, schema-qualified table name.
func (c *Context) QualifiedTable() string {
	return pq.QuoteIdentifier(c.Schema) + "." + pq.QuoteIdentifier(c.Table)
}

// CreateTableSQL returns the statement creating the history table.
func (c *Context) CreateTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"MigrationId" varchar(150) NOT NULL,
	"ContextKey" varchar(300) NOT NULL,
	"Model" bytea NOT NULL,
	"ProductVersion" varchar(32) NOT NULL,
	PRIMARY KEY ("MigrationId", "ContextKey")
)`, c.QualifiedTable())
}

// NewResolver returns a resolver that yields f for the given provider. The
// resolver answers requests without a key too, unless providerInvariantName
// is set and another name is requested.
func NewResolver(providerInvariantName string, f Factory) resolve.Resolver {
	return resolve.SingletonFunc(Service, f, func(key any) bool {
		if providerInvariantName == "" || key == nil {
			return true
		}
		name, ok := key.(string)
		return ok && name == providerInvariantName
	})
}
