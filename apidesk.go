// Package apidesk is the embeddable entry point: open a workspace, restore
// its tabs and serve it to a UI.
package apidesk

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/apidesk/internal/api"
	"github.com/loykin/apidesk/internal/catalog"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/kv"
	"github.com/loykin/apidesk/internal/remote"
	"github.com/loykin/apidesk/internal/tabs"
	"github.com/loykin/apidesk/internal/workspace"
)

// Re-export commonly used types for public API

// Workspace is one session: stores, tab ledger, variable resolver and synchronizer.
type Workspace = workspace.Workspace

type Config = workspace.Config

type Options = workspace.Options

// StoreConfig selects the persistent key/value backend.
type StoreConfig = kv.Config

const (
	DriverSqlite     = kv.DriverSqlite
	DriverPostgresql = kv.DriverPostgresql
	DriverMemory     = kv.DriverMemory
)

type RemoteConfig = remote.Config

// Catalog is the list of documented endpoints tabs are opened from.
type Catalog = catalog.Document

type Endpoint = catalog.Endpoint

type Body = catalog.Body

// TabDocument is the editable request state of one tab.
type TabDocument = tabs.Document

type Request = tabs.Request

type Variable = envvars.Resolved

type EnvStatus = envvars.Status

type ServerOptions = api.Options

type JWTConfig = api.JWTConfig

// IssueToken signs an HS256 token accepted by a server configured with cfg.
func IssueToken(cfg JWTConfig, subject string, ttl time.Duration) (string, error) {
	return api.IssueToken(cfg, subject, ttl)
}

// Open connects the configured store and remote source.
func Open(ctx context.Context, cfg Config) (*Workspace, error) { return workspace.Open(ctx, cfg) }

// LoadCatalog reads a YAML or JSON endpoint catalog.
func LoadCatalog(path string) (*Catalog, error) { return catalog.LoadFile(path) }

// TabKey returns the tab key of an endpoint.
func TabKey(method, path string) string { return tabs.KeyFor(method, path) }

// Serve starts ws and serves it on addr until ctx ends.
func Serve(ctx context.Context, ws *Workspace, addr string, opts ServerOptions) error {
	if _, err := ws.Start(ctx); err != nil {
		return err
	}
	return api.NewServer(ws, opts).Run(ctx, addr)
}

// MountRoutes registers the workspace HTTP routes on an application's gin group.
// Call the returned func when the routes are no longer served.
func MountRoutes(g *gin.RouterGroup, ws *Workspace, opts ServerOptions) func() {
	return api.Mount(g, ws, opts)
}

// Logger re-exports

type Logger = common.Logger

type LogLevel = common.LogLevel

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

func SetDefaultLogger(logger *Logger) { common.SetDefaultLogger(logger) }

func EnableMasking(enabled bool) { common.EnableMasking(enabled) }
