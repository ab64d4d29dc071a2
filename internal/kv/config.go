package kv

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/kv/postgresql"
	"github.com/loykin/apidesk/internal/kv/sqlite"
	"github.com/loykin/apidesk/internal/retry"
	"github.com/loykin/apidesk/internal/util"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgres"
	DriverMemory     = "memory"
)

// Config selects a backend. DriverConfig is decoded into the driver's own config type.
type Config struct {
	Driver       string         `mapstructure:"driver"`
	Table        string         `mapstructure:"table"`
	TablePrefix  string         `mapstructure:"table_prefix"`
	DriverConfig map[string]any `mapstructure:"driver_config"`
	Retry        *retry.Config  `mapstructure:"-"`
}

// TableName returns the effective table name.
func (c Config) TableName() string {
	if t, ok := util.TrimEmptyCheck(c.Table); ok {
		return t
	}
	if p, ok := util.TrimEmptyCheck(c.TablePrefix); ok {
		return p + "_" + constants.DefaultKVTable
	}
	return constants.DefaultKVTable
}

// Open connects the configured backend and ensures its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := util.TrimWithDefault(util.TrimAndLower(cfg.Driver), DriverSqlite)
	var dialect Dialect
	var dsn string
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSqlite:
		var sc sqlite.Config
		if err := mapstructure.Decode(cfg.DriverConfig, &sc); err != nil {
			return nil, fmt.Errorf("kv: sqlite config: %w", err)
		}
		dialect, dsn = sqlite.NewDialect(), sc.ResolveDSN()
	case DriverPostgresql, "postgresql":
		var pc postgresql.Config
		if err := mapstructure.Decode(cfg.DriverConfig, &pc); err != nil {
			return nil, fmt.Errorf("kv: postgres config: %w", err)
		}
		dsn = pc.ResolveDSN()
		if dsn == "" {
			return nil, fmt.Errorf("kv: postgres requires dsn or host")
		}
		dialect = postgresql.NewDialect()
	default:
		return nil, fmt.Errorf("kv: unsupported driver %q", cfg.Driver)
	}

	db, err := dialect.Connect(dsn)
	if err != nil {
		return nil, err
	}
	st, err := NewSQLStore(db, dialect, cfg.TableName(), cfg.Retry)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.Ensure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	common.GetLogger().WithStore(dialect.GetDriverName()).Info("kv store opened", "table", st.table)
	return st, nil
}
