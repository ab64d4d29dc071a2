package sqlite

import (
	"fmt"

	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/util"
)

// SQLite configuration constants
const (
	busyTimeoutMS = 5000
)

// Config selects the database file. DSN, when set, is used verbatim.
type Config struct {
	Path string `mapstructure:"path" yaml:"path"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

// ResolveDSN returns the connection string for modernc.org/sqlite.
func (c *Config) ResolveDSN() string {
	if dsn, ok := util.TrimEmptyCheck(c.DSN); ok {
		return dsn
	}
	path := util.TrimWithDefault(c.Path, constants.DefaultSQLiteFile)
	if path == ":memory:" {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMS)
}
