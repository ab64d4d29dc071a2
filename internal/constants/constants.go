package constants

import "time"

// Database Constants
const (
	// PostgreSQL defaults
	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	// Connection pool settings
	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	// DefaultKVTable holds every logical store as (store, key) rows.
	DefaultKVTable = "kv_entries"

	// DefaultSQLiteFile is used when the sqlite driver has no path configured.
	DefaultSQLiteFile = "apidesk.db"
)

// Time and Duration Constants
const (
	// Connection pool lifetimes
	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute

	// DefaultCoalesceWait is the quiet window before a pending write is persisted.
	DefaultCoalesceWait = 400 * time.Millisecond
)

// Logical store names and well-known keys.
const (
	StoreTabOrder = "tab_order"
	StoreTabDocs  = "tab_docs"
	StoreEnvVars  = "env_vars"
	StoreEnvCache = "env_instance"
	StoreFiles    = "files"

	KeyTabOrderList  = "TAB_ORDER_LIST"
	KeyLastActiveTab = "LAST_ACTIVE_TAB_KEY"
	KeyEnvVarsList   = "envVars:list"
	KeyEnvCache      = "env"
)

// Remote service defaults
const (
	DefaultEnvironmentPath = "/retreever/environment"
	DefaultPingPath        = "/retreever/ping"
	DefaultCatalogPath     = "/retreever/doc"
	DefaultRemoteTimeout   = 10 * time.Second
)

// HTTP API defaults
const (
	DefaultListenAddr = "127.0.0.1:8750"
)
