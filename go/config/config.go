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

// Package config loads connection settings from config files,
// environment variables, and flags. Lookup precedence follows viper:
// explicit flag values, then environment, then the config file, then
// defaults. The standard PG* environment variables libpq users expect
// are honored alongside the PQLINK_ prefix.
package config

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pqlink/pqlink/go/pqwire"
	"github.com/pqlink/pqlink/go/tools/pgpass"
)

// Retry configures dial retries.
type Retry struct {
	Attempts  int           `mapstructure:"attempts" yaml:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// Config is the resolved connection configuration.
type Config struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`

	// SSLMode is one of disable, require, or verify-full.
	SSLMode string `mapstructure:"sslmode" yaml:"sslmode"`

	// ConnectTimeout bounds establishing the TCP connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// PassFile is the password file consulted when no password is set.
	// Empty means the libpq default (~/.pgpass or PGPASSFILE).
	PassFile string `mapstructure:"passfile" yaml:"passfile,omitempty"`

	// Params are extra startup parameters, e.g. application_name.
	Params map[string]string `mapstructure:"params" yaml:"params,omitempty"`

	Retry Retry `mapstructure:"retry" yaml:"retry"`
}

// envBindings maps config keys to the PG* environment variables that
// may supply them.
var envBindings = map[string]string{
	"host":     "PGHOST",
	"port":     "PGPORT",
	"user":     "PGUSER",
	"password": "PGPASSWORD",
	"database": "PGDATABASE",
	"sslmode":  "PGSSLMODE",
	"passfile": "PGPASSFILE",
}

// New returns a viper instance carrying the defaults and environment
// bindings, reading files through fs.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix("PQLINK")
	v.AutomaticEnv()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 5432)
	v.SetDefault("user", "postgres")
	v.SetDefault("database", "")
	v.SetDefault("sslmode", "disable")
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base_delay", 100*time.Millisecond)
	v.SetDefault("retry.max_delay", 2*time.Second)

	for key, env := range envBindings {
		// BindEnv with explicit names never errors.
		_ = v.BindEnv(key, "PQLINK_"+env[2:], env)
	}
	return v
}

// Load resolves the configuration. configFile may be empty, in which
// case only defaults, environment, and bound flags apply. When no
// password was supplied anywhere, the password file is consulted.
func Load(fs afero.Fs, configFile string) (*Config, error) {
	v := New(fs)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}
	return resolve(fs, v)
}

// BindFlags attaches the connection flags to fs and binds them into v,
// so flag values take precedence over file and environment.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("host", "localhost", "server host name or address")
	flags.IntP("port", "p", 5432, "server port")
	flags.StringP("user", "U", "postgres", "user name")
	flags.StringP("database", "d", "", "database name (defaults to the user name)")
	flags.String("sslmode", "disable", "SSL mode: disable, require, or verify-full")
	flags.Duration("connect-timeout", 10*time.Second, "connection establishment timeout")
	flags.Int("retries", 3, "dial attempts before giving up")

	_ = v.BindPFlag("host", flags.Lookup("host"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("user", flags.Lookup("user"))
	_ = v.BindPFlag("database", flags.Lookup("database"))
	_ = v.BindPFlag("sslmode", flags.Lookup("sslmode"))
	_ = v.BindPFlag("connect_timeout", flags.Lookup("connect-timeout"))
	_ = v.BindPFlag("retry.attempts", flags.Lookup("retries"))
}

// Resolve unmarshals v into a Config and fills the password from the
// password file if needed.
func Resolve(fs afero.Fs, v *viper.Viper) (*Config, error) {
	return resolve(fs, v)
}

func resolve(fs afero.Fs, v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Database == "" {
		cfg.Database = cfg.User
	}

	switch cfg.SSLMode {
	case "", "disable", "require", "verify-full":
	default:
		return nil, fmt.Errorf("unknown sslmode %q", cfg.SSLMode)
	}

	if cfg.Password == "" {
		path := cfg.PassFile
		if path == "" {
			path = pgpass.DefaultPath()
		}
		if path != "" {
			pw, err := pgpass.LookupPassword(fs, path, cfg.Host, cfg.Port, cfg.Database, cfg.User)
			if err != nil {
				return nil, err
			}
			cfg.Password = pw
		}
	}
	return &cfg, nil
}

// WireConfig translates the resolved configuration into the wire
// client's form.
func (c *Config) WireConfig() *pqwire.Config {
	var tlsConfig *tls.Config
	switch c.SSLMode {
	case "require":
		// Encrypted but unauthenticated, matching libpq's sslmode=require.
		tlsConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	case "verify-full":
		tlsConfig = &tls.Config{ServerName: c.Host}
	}

	return &pqwire.Config{
		Host:        c.Host,
		Port:        c.Port,
		User:        c.User,
		Password:    c.Password,
		Database:    c.Database,
		Parameters:  c.Params,
		TLSConfig:   tlsConfig,
		DialTimeout: c.ConnectTimeout,
	}
}

// Dump renders the configuration as YAML with the password redacted.
func (c *Config) Dump() (string, error) {
	redacted := *c
	if redacted.Password != "" {
		redacted.Password = "********"
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
