// Package cli implements the aadtoken command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/entratools/aad-token-validator/internal/config"
)

// Exit codes returned by Execute.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitInvalid       = 2
	ExitIndeterminate = 3
)

// exitError carries an exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// Streams are the standard streams a command reads and writes.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// app is the state shared by every subcommand.
type app struct {
	streams Streams
	viper   *viper.Viper
	cfg     *config.Config
	log     *logrus.Logger

	cfgFile string
}

// NewRootCommand builds the aadtoken command tree.
func NewRootCommand(streams Streams) *cobra.Command {
	a := &app{streams: streams, viper: config.NewViper()}
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:           "aadtoken",
		Short:         "Validate and inspect Azure AD tokens",
		Long:          `aadtoken decodes Azure AD ID and access tokens, verifies their signature against the tenant's published keys and checks their claims.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./aadtoken.yaml or $HOME/.config/aadtoken/aadtoken.yaml)")
	flags.String("tenant", defaults.Tenant, "tenant id or domain; 'common' derives it from the token")
	flags.String("authority", defaults.Authority, "Azure AD authority")
	flags.Duration("clock-skew", defaults.ClockSkew, "tolerance applied to exp, nbf and iat")
	flags.Duration("http-timeout", defaults.HTTPTimeout, "timeout of each key endpoint request")
	flags.String("log-level", defaults.LogLevel, "log level: debug, info, warn or error")
	flags.String("log-format", defaults.LogFormat, "log format: text or json")
	flags.String("log-backend", defaults.LogBackend, "engine log backend: logrus, zap or zerolog")
	a.bind(flags.Lookup("tenant"), "tenant")
	a.bind(flags.Lookup("authority"), "authority")
	a.bind(flags.Lookup("clock-skew"), "clock_skew")
	a.bind(flags.Lookup("http-timeout"), "http_timeout")
	a.bind(flags.Lookup("log-level"), "log_level")
	a.bind(flags.Lookup("log-format"), "log_format")
	a.bind(flags.Lookup("log-backend"), "log_backend")

	root.AddCommand(
		newValidateCommand(a),
		newGraphCommand(a),
		newServeCommand(a),
	)
	return root
}

// Execute runs the command with the process arguments and streams and
// returns the exit code.
func Execute(ctx context.Context) int {
	return run(ctx, os.Args[1:], Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
}

func run(ctx context.Context, args []string, streams Streams) int {
	cmd := NewRootCommand(streams)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(streams.Err, exit.msg)
		}
		return exit.code
	}
	fmt.Fprintln(streams.Err, "Error:", err)
	return ExitError
}

func (a *app) load() error {
	if a.cfgFile != "" {
		a.viper.SetConfigFile(a.cfgFile)
	}
	cfg, err := config.Load(a.viper)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(cfg, a.streams.Err)

	if file := config.ConfigFile(a.viper); file != "" {
		a.log.WithField("file", file).Debug("loaded config file")
	}
	a.log.Debugf("config: %s", cfg)
	return nil
}

func (a *app) bind(flag *pflag.Flag, key string) {
	if err := a.viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("could not bind flag %s: %v", flag.Name, err))
	}
}

// newLogger builds the logrus logger commands write diagnostics to.
func newLogger(cfg *config.Config, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return log
}
