package history_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/history"
	"github.com/deep-rent/ormconf/resolve"
)

func TestNewContext(t *testing.T) {
	c := history.NewContext(nil, "")
	assert.Equal(t, history.DefaultSchema, c.Schema)
	assert.Equal(t, `"public"."__MigrationHistory"`, c.QualifiedTable())

	c = history.NewContext(nil, `we"ird`)
	assert.Equal(t, `"we""ird"."__MigrationHistory"`, c.QualifiedTable())
	assert.Contains(t, c.CreateTableSQL(), `CREATE TABLE IF NOT EXISTS "we""ird"."__MigrationHistory"`)
}

func TestNewResolver(t *testing.T) {
	custom := func(db *sql.DB, schema string) *history.Context {
		return &history.Context{DB: db, Schema: schema, Table: "history"}
	}
	r := history.NewResolver("postgres", custom)

	type test struct {
		name  string
		key   any
		found bool
	}

	tests := []test{
		{"matching provider", "postgres", true},
		{"no key", nil, true},
		{"other provider", "sqlite", false},
		{"wrong key type", 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := resolve.Get(r, history.Service, tc.key)
			require.NoError(t, err)
			if !tc.found {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, "history", f(nil, "s").Table)
		})
	}
}
