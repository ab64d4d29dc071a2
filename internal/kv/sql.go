package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/retry"
)

// Dialect hides the SQL differences between drivers.
type Dialect interface {
	GetPlaceholder(index int) string
	ConvertTimeToStorage(t time.Time) any
	GetEnsureStatements(table string) []string
	Connect(dsn string) (*sql.DB, error)
	GetDriverName() string
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps every logical store in a single (store_name, entry_key) table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	retry   *retry.Config
	closed  atomic.Bool
	logger  *common.Logger
}

// NewSQLStore wraps an open database. Ensure must run before first use.
func NewSQLStore(db *sql.DB, dialect Dialect, table string, rc *retry.Config) (*SQLStore, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("kv: invalid table name %q", table)
	}
	if rc == nil {
		rc = retry.DefaultRetryConfig()
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		table:   table,
		retry:   rc,
		logger:  common.GetLogger().WithStore(dialect.GetDriverName()),
	}, nil
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Ensure creates the backing table when it does not exist.
func (s *SQLStore) Ensure(ctx context.Context) error {
	for _, stmt := range s.dialect.GetEnsureStatements(s.table) {
		if _, err := retry.WithRetryExec(ctx, s.retry, func() (sql.Result, error) {
			return s.db.ExecContext(ctx, stmt)
		}); err != nil {
			return fmt.Errorf("kv: ensure %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *SQLStore) ph(i int) string { return s.dialect.GetPlaceholder(i) }

func (s *SQLStore) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	q := fmt.Sprintf("SELECT value FROM %s WHERE store_name = %s AND entry_key = %s", s.table, s.ph(1), s.ph(2))
	var value string
	err := retry.WithRetry(ctx, s.retry, func() error {
		return s.db.QueryRowContext(ctx, q, store, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get %s/%s: %w", store, key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLStore) Set(ctx context.Context, store, key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	q := fmt.Sprintf(
		"INSERT INTO %s(store_name, entry_key, value, updated_at) VALUES(%s, %s, %s, %s) "+
			"ON CONFLICT(store_name, entry_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	now := s.dialect.ConvertTimeToStorage(time.Now().UTC())
	if _, err := retry.WithRetryExec(ctx, s.retry, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, q, store, key, string(value), now)
	}); err != nil {
		return fmt.Errorf("kv: set %s/%s: %w", store, key, err)
	}
	s.logger.Debug("kv set", "store_name", store, "key", key, "bytes", len(value))
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, store, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE store_name = %s AND entry_key = %s", s.table, s.ph(1), s.ph(2))
	if _, err := retry.WithRetryExec(ctx, s.retry, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, q, store, key)
	}); err != nil {
		return fmt.Errorf("kv: remove %s/%s: %w", store, key, err)
	}
	return nil
}

func (s *SQLStore) ListKeys(ctx context.Context, store string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	q := fmt.Sprintf("SELECT entry_key FROM %s WHERE store_name = %s ORDER BY entry_key ASC", s.table, s.ph(1))
	rows, err := retry.WithRetryQuery(ctx, s.retry, func() (*sql.Rows, error) {
		return s.db.QueryContext(ctx, q, store)
	})
	if err != nil {
		return nil, fmt.Errorf("kv: list %s: %w", store, err)
	}
	defer func() { _ = rows.Close() }()
	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLStore) Clear(ctx context.Context, store string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE store_name = %s", s.table, s.ph(1))
	if _, err := retry.WithRetryExec(ctx, s.retry, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, q, store)
	}); err != nil {
		return fmt.Errorf("kv: clear %s: %w", store, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
