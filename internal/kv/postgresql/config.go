package postgresql

import (
	"fmt"

	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/util"
)

type Config struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// ResolveDSN prefers an explicit DSN; otherwise it builds one from components when host is provided.
func (p *Config) ResolveDSN() string {
	dsn, hasDSN := util.TrimEmptyCheck(p.DSN)
	host, hasHost := util.TrimEmptyCheck(p.Host)
	if hasDSN || !hasHost {
		return dsn
	}
	port := p.Port
	if port == 0 {
		port = constants.DefaultPostgresPort
	}
	ssl := util.TrimWithDefault(p.SSLMode, constants.DefaultPostgresSSLMode)

	fields := util.TrimSpaceFields(p.User, p.Password, p.DBName)
	user, password, dbname := fields[0], fields[1], fields[2]
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, host, port, dbname, ssl,
	)
}
