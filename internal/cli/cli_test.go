package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deep-rent/ormconf/appconfig"
	"github.com/deep-rent/ormconf/codec"
	"github.com/deep-rent/ormconf/internal/cli"
)

func execute(t *testing.T, vars map[string]string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.New(cli.WithEnv(func(k string) string { return vars[k] }))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig(t *testing.T) {
	path := write(t, "ormconf.yaml", `
defaultConnectionFactory:
  type: postgres
  parameters: ["host=${DB_HOST}"]
`)
	out, err := execute(t, map[string]string{
		"DB_HOST":                    "db.internal",
		"ORMCONF_CONFIGURATION_TYPE": "FromEnv",
	}, "config", "--config", path, "--output", "json")
	require.NoError(t, err)

	var got appconfig.AppConfig
	require.NoError(t, codec.JSON.Decode([]byte(out), &got))
	assert.Equal(t, "FromEnv", got.ConfigurationType)
	require.NotNil(t, got.DefaultConnectionFactory)
	assert.Equal(t, []string{"host=db.internal"}, got.DefaultConnectionFactory.Parameters)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		vars  map[string]string
		args  []string
		check func(t *testing.T, r cli.Report)
	}{
		{
			name: "defaults",
			args: []string{"resolve", "person"},
			check: func(t *testing.T, r cli.Report) {
				assert.Equal(t, "DbConfiguration", r.Configuration)
				assert.False(t, r.Scoped)
				assert.Equal(t, "host=localhost sslmode=disable", r.ConnectionFactory)
				assert.Equal(t, []cli.ProviderReport{{InvariantName: "postgres"}}, r.Providers)
				assert.Equal(t, map[string]string{"person": "people"}, r.Plurals)
			},
		},
		{
			name: "connection base flag",
			args: []string{"resolve", "--connection-base", "host=flag"},
			check: func(t *testing.T, r cli.Report) {
				assert.Equal(t, "host=flag", r.ConnectionFactory)
			},
		},
		{
			name: "environment",
			vars: map[string]string{
				"ORMCONF_DEFAULT_CONNECTION_FACTORY": "postgres:host=env",
				"ORMCONF_PROVIDERS":                  "custom=postgres",
			},
			args: []string{"resolve"},
			check: func(t *testing.T, r cli.Report) {
				assert.Equal(t, "host=env", r.ConnectionFactory)
				require.Len(t, r.Providers, 2)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.vars, tt.args...)
			require.NoError(t, err)
			var r cli.Report
			require.NoError(t, codec.YAML.Decode([]byte(out), &r))
			tt.check(t, r)
		})
	}
}

func TestResolve_Scope(t *testing.T) {
	scope := write(t, "scope.json", `{
  "defaultConnectionFactory": {"type": "postgres", "parameters": ["host=scoped"]},
  "interceptors": [{"type": "DatabaseLogger", "parameters": ["`+filepath.Join(t.TempDir(), "db.log")+`"]}]
}`)
	out, err := execute(t, nil, "resolve", "--scope", scope, "-o", "json")
	require.NoError(t, err)

	var r cli.Report
	require.NoError(t, codec.JSON.Decode([]byte(out), &r))
	assert.True(t, r.Scoped)
	assert.Equal(t, "host=scoped", r.ConnectionFactory)
	assert.Equal(t, 1, r.Interceptors)
}

func TestErrors(t *testing.T) {
	missing := write(t, "ormconf.yaml", "configurationType: Missing\n")
	tests := []struct {
		name string
		args []string
	}{
		{"unknown output", []string{"config", "-o", "xml"}},
		{"missing file", []string{"config", "-c", "/nonexistent/ormconf.yaml"}},
		{"unknown configuration type", []string{"resolve", "-c", missing}},
		{"bad log level", []string{"resolve", "--log-level", "loud"}},
		{"check without target", []string{"check"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, tt.args...)
			assert.Error(t, err)
		})
	}
}
