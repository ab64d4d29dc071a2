package retry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	c := DefaultRetryConfig()
	c.MaxRetries = maxRetries
	c.InitialDelay = time.Millisecond
	c.MaxDelay = 5 * time.Millisecond
	return c
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}
	if config.InitialDelay != 100*time.Millisecond {
		t.Errorf("Expected InitialDelay to be 100ms, got %v", config.InitialDelay)
	}
	if config.MaxDelay != 5*time.Second {
		t.Errorf("Expected MaxDelay to be 5s, got %v", config.MaxDelay)
	}
	if config.BackoffFactor != 2.0 {
		t.Errorf("Expected BackoffFactor to be 2.0, got %f", config.BackoffFactor)
	}
	if len(config.RetryableErrors) != 9 {
		t.Errorf("Expected 9 retryable errors, got %d", len(config.RetryableErrors))
	}
}

func TestConfig_isRetryableError(t *testing.T) {
	config := DefaultRetryConfig()
	config.Retryable = func(err error) bool { return strings.Contains(err.Error(), "503") }

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused error", errors.New("dial tcp: connection refused"), true},
		{"database is locked error", errors.New("database is locked (5)"), true},
		{"case insensitive", errors.New("Request TIMEOUT"), true},
		{"custom classifier", errors.New("unexpected status 503"), true},
		{"context canceled", context.Canceled, false},
		{"wrapped deadline", errors.Join(errors.New("timeout"), context.DeadlineExceeded), false},
		{"syntax error", errors.New("syntax error at or near"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := config.isRetryableError(tt.err); got != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestConfig_calculateDelay(t *testing.T) {
	config := &Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2.0}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := config.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestWithRetry_Success(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetry_RetryableError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_NonRetryableError(t *testing.T) {
	calls := 0
	want := errors.New("constraint violation")
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetry_MaxRetriesExceeded(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(2), func() error {
		calls++
		return errors.New("connection reset")
	})
	if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithRetry(ctx, fastConfig(3), func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetry_NoRetry(t *testing.T) {
	calls := 0
	want := errors.New("timeout")
	err := WithRetry(context.Background(), NoRetry(), func() error {
		calls++
		return want
	})
	if err != want || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDo(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(2), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("broken pipe")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("v=%q err=%v", v, err)
	}
}

type fakeResult struct{ rows int64 }

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rows, nil }

func TestWithRetryExec_WithRetries(t *testing.T) {
	calls := 0
	res, err := WithRetryExec(context.Background(), fastConfig(3), func() (sql.Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("database is locked")
		}
		return fakeResult{rows: 1}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("RowsAffected = %d", n)
	}
}
