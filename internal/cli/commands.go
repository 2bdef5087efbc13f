package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/deep-rent/ormconf/connection"
	"github.com/deep-rent/ormconf/dbconfig"
	"github.com/deep-rent/ormconf/execution"
	"github.com/deep-rent/ormconf/manifest"
	"github.com/deep-rent/ormconf/pluralization"
	"github.com/deep-rent/ormconf/provider"
	"github.com/deep-rent/ormconf/resolve"
)

func newConfig(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the effective application configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.appConfig()
			if err != nil {
				return err
			}
			return o.print(cmd, cfg)
		},
	}
}

// ProviderReport describes the services resolved for one provider.
type ProviderReport struct {
	InvariantName    string `json:"invariantName" yaml:"invariantName"`
	RetriesOnFailure bool   `json:"retriesOnFailure" yaml:"retriesOnFailure"`
}

// Report is the output of the resolve command.
type Report struct {
	Configuration     string            `json:"configuration" yaml:"configuration"`
	Scoped            bool              `json:"scoped" yaml:"scoped"`
	ConnectionFactory string            `json:"connectionFactory" yaml:"connectionFactory"`
	Providers         []ProviderReport  `json:"providers" yaml:"providers"`
	Interceptors      int               `json:"interceptors" yaml:"interceptors"`
	Plurals           map[string]string `json:"plurals,omitempty" yaml:"plurals,omitempty"`
}

func describeFactory(f connection.Factory) string {
	if pg, ok := f.(*connection.Postgres); ok {
		return pg.Base()
	}
	return fmt.Sprintf("%T", f)
}

type resolveCmd struct {
	*Options
	scope     string
	providers []string
}

func newResolve(o *Options) *cobra.Command {
	c := &resolveCmd{Options: o}
	cmd := &cobra.Command{
		Use:   "resolve {<word>}",
		Short: "show the services the configuration resolves to",
		Long: `
Builds the database configuration and reports its type, connection factory,
provider services and interceptors. Words given as arguments are pluralized
with the configured pluralization service.
`,
		RunE: c.run,
	}
	flags := cmd.Flags()
	flags.StringVar(&c.scope, "scope", "", "push a scoped configuration loaded from this file")
	flags.StringSliceVarP(&c.providers, "provider", "p", []string{provider.Postgres}, "providers to report")
	return cmd
}

func (c *resolveCmd) run(cmd *cobra.Command, words []string) error {
	m, cfg, err := c.manager(cmd)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	report := Report{}
	if c.scope != "" {
		scope, err := c.load(c.scope)
		if err != nil {
			return err
		}
		if report.Scoped, err = m.PushConfiguration(scope, dbconfig.BaseContext); err != nil {
			return err
		}
		defer m.PopConfiguration(scope)
	}

	internal, err := m.GetConfiguration()
	if err != nil {
		return err
	}
	r := internal.DependencyResolver()
	report.Configuration = internal.Owner().Type().String()
	report.Interceptors = m.Dispatchers().Len()

	f, err := resolve.Get(r, connection.Service, nil)
	if err != nil {
		return err
	}
	report.ConnectionFactory = describeFactory(f)

	names := slices.Clone(c.providers)
	for _, p := range cfg.Providers {
		if !slices.Contains(names, p.InvariantName) {
			names = append(names, p.InvariantName)
		}
	}
	for _, name := range names {
		s, err := resolve.Get(r, provider.ServicesService, name)
		if err != nil {
			return err
		}
		strategy, err := execution.StrategyFor(r, execution.Key{ProviderInvariantName: name})
		if err != nil {
			return err
		}
		report.Providers = append(report.Providers, ProviderReport{
			InvariantName:    s.InvariantName(),
			RetriesOnFailure: strategy.RetriesOnFailure(),
		})
	}

	if len(words) > 0 {
		p, err := resolve.Get(r, pluralization.Service, nil)
		if err != nil {
			return err
		}
		report.Plurals = make(map[string]string, len(words))
		for _, w := range words {
			report.Plurals[w] = p.Pluralize(w)
		}
	}
	return c.print(cmd, report)
}

// CheckResult is the output of the check command.
type CheckResult struct {
	Database      string `json:"database" yaml:"database"`
	ManifestToken string `json:"manifestToken" yaml:"manifestToken"`
}

type checkCmd struct {
	*Options
	provider string
	timeout  time.Duration
}

func newCheck(o *Options) *cobra.Command {
	c := &checkCmd{Options: o}
	cmd := &cobra.Command{
		Use:   "check <name-or-connection-string>",
		Short: "connect to a database and report its manifest token",
		Long: `
Opens a connection with the configured connection factory and execution
strategy, then resolves the manifest token of the server. The argument is
looked up among the named connection strings of the configuration first.
`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	flags := cmd.Flags()
	flags.StringVarP(&c.provider, "provider", "p", provider.Postgres, "provider whose execution strategy is used")
	flags.DurationVar(&c.timeout, "timeout", 30*time.Second, "time limit for the check")
	return cmd
}

func (c *checkCmd) run(cmd *cobra.Command, args []string) error {
	m, cfg, err := c.manager(cmd)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	target := args[0]
	if cs, ok := cfg.ConnectionString(target); ok {
		target = cs
	}

	r, err := m.DependencyResolver()
	if err != nil {
		return err
	}
	f, err := resolve.Get(r, connection.Service, nil)
	if err != nil {
		return err
	}
	db, err := f.CreateConnection(target)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	strategy, err := execution.StrategyFor(r, execution.Key{ProviderInvariantName: c.provider})
	if err != nil {
		return err
	}
	if err := strategy.Execute(ctx, func(ctx context.Context) error {
		return m.Dispatchers().Open(ctx, db, "ormconf")
	}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	tokens, err := resolve.Get(r, manifest.Service, nil)
	if err != nil {
		return err
	}
	token, err := tokens.ResolveManifestToken(ctx, db)
	if err != nil {
		return fmt.Errorf("resolve manifest token: %w", err)
	}
	return c.print(cmd, CheckResult{Database: args[0], ManifestToken: token})
}
