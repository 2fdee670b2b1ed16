// Copyright 2025 The Pqlink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pqlink/pqlink/go/config"
	"github.com/pqlink/pqlink/go/dialpolicy"
	"github.com/pqlink/pqlink/go/session"
)

// cli carries the state shared by all subcommands: the filesystem, the
// viper instance flags are bound into, and the configuration resolved
// during PersistentPreRunE.
type cli struct {
	fs    afero.Fs
	viper *viper.Viper
	cfg   *config.Config

	configFile string
	logLevel   string
	logJSON    bool
	lazy       bool
	traceWire  bool
}

// NewRootCommand builds the pqlink command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{fs: afero.NewOsFs()}
	c.viper = config.New(c.fs)

	root := &cobra.Command{
		Use:   "pqlink",
		Short: "PostgreSQL logical connection tool",
		Long: `pqlink drives a single logical PostgreSQL connection: it runs SQL,
listens for notifications, and moves COPY data, transparently
re-establishing the physical link when it is lost.

Connection settings come from flags, PG* environment variables, and an
optional YAML config file, in that order of precedence. Passwords fall
back to the usual ~/.pgpass lookup.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "path to a YAML config file")
	pf.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	pf.BoolVar(&c.logJSON, "log-json", false, "emit logs as JSON")
	pf.BoolVar(&c.lazy, "lazy-connect", false, "defer connecting until the first operation needs the server")
	pf.BoolVar(&c.traceWire, "trace", false, "dump the wire-protocol exchange to stderr")
	config.BindFlags(pf, c.viper)

	root.AddCommand(
		newExecCommand(c),
		newListenCommand(c),
		newCopyInCommand(c),
		newCopyOutCommand(c),
		newQuoteCommand(c),
		newConfigCommand(c),
	)
	return root
}

// Execute runs the command tree.
func Execute() error {
	return NewRootCommand().Execute()
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if err := c.setupLogging(); err != nil {
		return err
	}

	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", c.configFile, err)
		}
	}

	cfg, err := config.Resolve(c.fs, c.viper)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) setupLogging() error {
	var level slog.Level
	switch strings.ToLower(c.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", c.logLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// connect builds a session per the resolved configuration and
// establishes it (immediately or lazily).
func (c *cli) connect() (*session.Conn, error) {
	wire := c.cfg.WireConfig()
	opts := []dialpolicy.Option{
		dialpolicy.WithDialAttempts(c.cfg.Retry.Attempts),
		dialpolicy.WithRetryDelays(c.cfg.Retry.BaseDelay, c.cfg.Retry.MaxDelay),
	}

	var policy session.Policy = dialpolicy.NewDirect(wire, opts...)
	if c.lazy {
		policy = dialpolicy.NewLazy(wire, opts...)
	}

	conn := session.New(policy, session.WithLogger(slog.Default()))
	if c.traceWire {
		conn.Trace(os.Stderr)
	}
	if err := conn.Init(); err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return conn, nil
}
