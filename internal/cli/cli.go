// Package cli implements the ormconf command line tool, which inspects the
// database services an application configuration resolves to.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/deep-rent/ormconf/appconfig"
	"github.com/deep-rent/ormconf/codec"
	"github.com/deep-rent/ormconf/dbconfig"
	"github.com/deep-rent/ormconf/env"
	"github.com/deep-rent/ormconf/log"
)

// Options holds the flags shared by all commands.
type Options struct {
	config    string
	base      string
	output    outputFlag
	logLevel  string
	logFormat string
	logFile   string

	lookup env.Lookup
	getenv func(string) string
}

// outputFlag selects the codec results are printed with.
type outputFlag struct {
	name  string
	codec codec.Codec
}

func (f *outputFlag) String() string { return f.name }

func (f *outputFlag) Set(s string) error {
	switch strings.ToLower(s) {
	case "json":
		f.name, f.codec = "json", codec.JSON
	case "yaml", "yml":
		f.name, f.codec = "yaml", codec.YAML
	default:
		return fmt.Errorf("%w: %q", codec.ErrUnsupportedFormat, s)
	}
	return nil
}

func (f *outputFlag) Type() string { return "format" }

var _ pflag.Value = (*outputFlag)(nil)

func (o *Options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.config, "config", "c", "", "application configuration file (.json, .yaml)")
	fs.StringVar(&o.base, "connection-base", "", "base connection string of the built-in connection factory")
	fs.VarP(&o.output, "output", "o", "output format (json, yaml)")
	fs.StringVar(&o.logLevel, "log-level", log.DefaultLevel.String(), "log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", log.DefaultFormat.String(), "log format (text, json)")
	fs.StringVar(&o.logFile, "log-file", "", "write logs to this file instead of standard error")
}

func (o *Options) logger(w io.Writer) (*slog.Logger, error) {
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	format, err := log.ParseFormat(o.logFormat)
	if err != nil {
		return nil, err
	}
	return log.New(
		log.WithLevel(level),
		log.WithFormat(format),
		log.WithWriter(w),
		log.WithFile(o.logFile),
	), nil
}

// appConfig loads the configuration file, if any, and applies the
// environment on top.
func (o *Options) appConfig() (*appconfig.AppConfig, error) {
	return o.load(o.config)
}

func (o *Options) load(path string) (*appconfig.AppConfig, error) {
	var base *appconfig.AppConfig
	if path != "" {
		var err error
		if base, err = appconfig.LoadWith(path, o.getenv); err != nil {
			return nil, err
		}
	}
	return appconfig.FromEnv(base, env.WithLookup(o.lookup))
}

// manager builds a configuration manager for the default application
// configuration.
func (o *Options) manager(cmd *cobra.Command) (*dbconfig.Manager, *appconfig.AppConfig, error) {
	cfg, err := o.appConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := o.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	var root []dbconfig.RootOption
	if o.base != "" {
		root = append(root, dbconfig.WithConnectionBase(o.base))
	}
	m := dbconfig.NewManager(
		dbconfig.WithManagerLogger(logger),
		dbconfig.WithAppConfig(cfg),
		dbconfig.WithRootOptions(root...),
	)
	return m, cfg, nil
}

func (o *Options) print(cmd *cobra.Command, v any) error {
	raw, err := o.output.codec.Encode(v)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		_, err = io.WriteString(w, "\n")
	}
	return err
}

// Option customizes the command tree.
type Option func(*Options)

// WithEnv sets the function environment variables are read with.
func WithEnv(getenv func(string) string) Option {
	return func(o *Options) {
		if getenv == nil {
			return
		}
		o.getenv = getenv
		o.lookup = func(key string) (string, bool) {
			v := getenv(key)
			return v, v != ""
		}
	}
}

// New creates the root command.
func New(opts ...Option) *cobra.Command {
	o := &Options{
		output: outputFlag{name: "yaml", codec: codec.YAML},
		lookup: os.LookupEnv,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(o)
	}

	cmd := &cobra.Command{
		Use:   "ormconf",
		Short: "inspect database configurations",
		Long: `
ormconf loads an application configuration file, applies the ORMCONF_
environment variables on top, and shows the services the resulting
database configuration resolves to.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.bind(cmd.PersistentFlags())

	cmd.AddCommand(newConfig(o))
	cmd.AddCommand(newResolve(o))
	cmd.AddCommand(newCheck(o))
	return cmd
}
