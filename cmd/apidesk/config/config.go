package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/loykin/apidesk/internal/api"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/httpc"
	"github.com/loykin/apidesk/internal/kv"
	"github.com/loykin/apidesk/internal/kv/postgresql"
	"github.com/loykin/apidesk/internal/kv/sqlite"
	"github.com/loykin/apidesk/internal/remote"
	"github.com/loykin/apidesk/internal/util"
	"github.com/loykin/apidesk/internal/workspace"
)

type StoreConfig struct {
	Type        string            `mapstructure:"type" yaml:"type"` // sqlite (default), postgres, memory
	SQLite      sqlite.Config     `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres    postgresql.Config `mapstructure:"postgres" yaml:"postgres"`
	Table       string            `mapstructure:"table" yaml:"table"`
	TablePrefix string            `mapstructure:"table_prefix" yaml:"table_prefix"`
}

type ClientConfig struct {
	Insecure      bool   `mapstructure:"insecure" yaml:"insecure"`
	MinTLSVersion string `mapstructure:"min_tls_version" yaml:"min_tls_version"`
	MaxTLSVersion string `mapstructure:"max_tls_version" yaml:"max_tls_version"`
}

type AuthConfig struct {
	// Type is "oauth2" (client credentials grant); empty disables auth.
	Type   string         `mapstructure:"type" yaml:"type"`
	Config map[string]any `mapstructure:"config" yaml:"config"`
}

type RemoteConfig struct {
	BaseURL         string       `mapstructure:"base_url" yaml:"base_url"`
	EnvironmentPath string       `mapstructure:"environment_path" yaml:"environment_path"`
	PingPath        string       `mapstructure:"ping_path" yaml:"ping_path"`
	DocumentPath    string       `mapstructure:"document_path" yaml:"document_path"`
	Timeout         string       `mapstructure:"timeout" yaml:"timeout"`
	Client          ClientConfig `mapstructure:"client" yaml:"client"`
	Auth            AuthConfig   `mapstructure:"auth" yaml:"auth"`
}

type CatalogConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type SessionConfig struct {
	// CoalesceWait is the quiet window before edits are persisted, e.g. "400ms".
	CoalesceWait string `mapstructure:"coalesce_wait" yaml:"coalesce_wait"`
	// BaseURL prefixes the path of newly opened tabs.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret" yaml:"secret"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
	Audience  string `mapstructure:"audience" yaml:"audience"`
	ClockSkew string `mapstructure:"clock_skew" yaml:"clock_skew"`
}

type ServerConfig struct {
	Addr string    `mapstructure:"addr" yaml:"addr"`
	JWT  JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

type ConfigDoc struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	if info, statErr := os.Stat(clean); statErr != nil || !info.Mode().IsRegular() {
		if statErr != nil {
			return statErr
		}
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("decode %s: %w", clean, err)
	}
	// relative catalog and sqlite paths are resolved against the config file
	dir := filepath.Dir(clean)
	c.Catalog.File = resolvePath(dir, c.Catalog.File)
	c.Store.SQLite.Path = resolvePath(dir, c.Store.SQLite.Path)
	return nil
}

func resolvePath(dir, p string) string {
	p, ok := util.TrimEmptyCheck(p)
	if !ok || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, ok := common.ParseLogLevel(util.TrimAndLower(c.Logging.Level))
	if !ok {
		return fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}

	format := util.TrimAndLower(c.Logging.Format)
	useColor := format == "color" || format == "colour"
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	}

	var logger *common.Logger
	switch format {
	case "json":
		logger = common.NewJSONLogger(level)
	case "color", "colour", "text", "":
		if useColor {
			logger = common.NewColorLogger(level)
		} else {
			logger = common.NewLogger(level)
		}
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	maskingEnabled := true
	if c.Logging.MaskSensitive != nil {
		maskingEnabled = *c.Logging.MaskSensitive
	}
	common.EnableMasking(maskingEnabled)
	common.SetDefaultLogger(logger)

	logger.Debug("logging configured",
		"level", level.String(),
		"format", util.TrimWithDefault(format, "text"),
		"color", useColor,
		"mask_sensitive", maskingEnabled)
	return nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	s, ok := util.TrimEmptyCheck(s)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}

// KV builds the store configuration. The driver section is flattened with
// mapstructure the way kv.Open decodes it.
func (s StoreConfig) KV() (kv.Config, error) {
	cfg := kv.Config{
		Driver:      util.TrimWithDefault(util.TrimAndLower(s.Type), kv.DriverSqlite),
		Table:       s.Table,
		TablePrefix: s.TablePrefix,
	}
	var section any
	switch cfg.Driver {
	case kv.DriverSqlite:
		section = s.SQLite
	case kv.DriverPostgresql, "postgresql":
		section = s.Postgres
	case kv.DriverMemory:
		return cfg, nil
	default:
		return cfg, fmt.Errorf("store.type: unsupported %q (valid: sqlite, postgres, memory)", s.Type)
	}
	if err := mapstructure.Decode(section, &cfg.DriverConfig); err != nil {
		return cfg, fmt.Errorf("store.%s: %w", cfg.Driver, err)
	}
	return cfg, nil
}

// Remote builds the remote client configuration, nil when no base_url is set.
func (r RemoteConfig) Remote(ctx context.Context) (*remote.Config, error) {
	base, ok := util.TrimEmptyCheck(r.BaseURL)
	if !ok {
		return nil, nil
	}
	timeout, err := parseDuration("remote.timeout", r.Timeout, constants.DefaultRemoteTimeout)
	if err != nil {
		return nil, err
	}
	cfg := &remote.Config{
		BaseURL:         base,
		EnvironmentPath: r.EnvironmentPath,
		PingPath:        r.PingPath,
		CatalogPath:     r.DocumentPath,
		Timeout:         timeout,
		TLS:             httpc.TLSConfig(r.Client.MinTLSVersion, r.Client.MaxTLSVersion, r.Client.Insecure),
	}
	switch util.TrimAndLower(r.Auth.Type) {
	case "":
	case "oauth2", "client_credentials":
		cc, err := httpc.DecodeClientCredentials(r.Auth.Config)
		if err != nil {
			return nil, fmt.Errorf("remote.auth: %w", err)
		}
		ts, err := cc.TokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("remote.auth: %w", err)
		}
		cfg.TokenSource = ts
	default:
		return nil, fmt.Errorf("remote.auth.type: unsupported %q", r.Auth.Type)
	}
	return cfg, nil
}

// Workspace assembles everything workspace.Open needs.
func (c *ConfigDoc) Workspace(ctx context.Context) (workspace.Config, error) {
	var cfg workspace.Config
	store, err := c.Store.KV()
	if err != nil {
		return cfg, err
	}
	rc, err := c.Remote.Remote(ctx)
	if err != nil {
		return cfg, err
	}
	wait, err := parseDuration("session.coalesce_wait", c.Session.CoalesceWait, constants.DefaultCoalesceWait)
	if err != nil {
		return cfg, err
	}
	baseURL := c.Session.BaseURL
	if baseURL == "" {
		baseURL = c.Remote.BaseURL
	}
	return workspace.Config{
		Store:       store,
		Remote:      rc,
		CatalogFile: c.Catalog.File,
		Options: workspace.Options{
			CoalesceWait: wait,
			BaseURL:      baseURL,
		},
	}, nil
}

// API returns the server options; JWT is enabled when a secret is configured.
func (c *ConfigDoc) API() (api.Options, error) {
	var opts api.Options
	secret, ok := util.TrimEmptyCheck(c.Server.JWT.Secret)
	if !ok {
		if c.Server.JWT.Issuer != "" || c.Server.JWT.Audience != "" {
			return opts, errors.New("server.jwt: secret is required when issuer or audience is set")
		}
		return opts, nil
	}
	skew, err := parseDuration("server.jwt.clock_skew", c.Server.JWT.ClockSkew, 0)
	if err != nil {
		return opts, err
	}
	opts.JWT = &api.JWTConfig{
		Secret:    []byte(secret),
		Issuer:    c.Server.JWT.Issuer,
		Audience:  c.Server.JWT.Audience,
		ClockSkew: skew,
	}
	return opts, nil
}

// Addr returns the listen address.
func (c *ConfigDoc) Addr() string {
	return util.TrimWithDefault(c.Server.Addr, constants.DefaultListenAddr)
}
