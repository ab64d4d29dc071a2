package postgresql

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_ResolveDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit dsn", Config{DSN: " postgres://a@b/c ", Host: "ignored"}, "postgres://a@b/c"},
		{"components with defaults", Config{Host: "db", User: "u", Password: "p", DBName: "desk"}, "postgres://u:p@db:5432/desk?sslmode=disable"},
		{"custom port and ssl", Config{Host: "db", Port: 6543, User: "u", Password: "p", DBName: "desk", SSLMode: "require"}, "postgres://u:p@db:6543/desk?sslmode=require"},
		{"nothing", Config{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveDSN(); got != tt.want {
				t.Fatalf("ResolveDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialect(t *testing.T) {
	d := NewDialect()
	if d.GetPlaceholder(2) != "$2" {
		t.Fatal("postgres placeholder must be $n")
	}
	ts := time.Now()
	if got, ok := d.ConvertTimeToStorage(ts).(time.Time); !ok || !got.Equal(ts) {
		t.Fatal("expected native time")
	}
	if stmts := d.GetEnsureStatements("kv_entries"); !strings.Contains(stmts[0], "TIMESTAMPTZ") {
		t.Fatalf("unexpected statements %v", stmts)
	}
	if d.GetDriverName() != "postgresql" {
		t.Fatal("driver name")
	}
}
