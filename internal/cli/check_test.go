package cli_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/deep-rent/ormconf/codec"
	"github.com/deep-rent/ormconf/internal/cli"
	"github.com/deep-rent/ormconf/manifest"
)

func TestCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("blog"),
		postgres.WithUsername("ormconf"),
		postgres.WithPassword("secret"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	out, err := execute(t, map[string]string{
		"ORMCONF_CONNECTION_STRINGS": "Blog=" + dsn,
	}, "check", "Blog", "-o", "json")
	require.NoError(t, err)

	var res cli.CheckResult
	require.NoError(t, codec.JSON.Decode([]byte(out), &res))
	assert.Equal(t, "Blog", res.Database)
	assert.Equal(t, "v16", manifest.Major(res.ManifestToken))
}
