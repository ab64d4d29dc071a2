// Package remote talks to the service that publishes the environment schema,
// the liveness fingerprint and the endpoint catalog.
package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/loykin/apidesk/internal/catalog"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/httpc"
	"github.com/loykin/apidesk/internal/retry"
	"github.com/loykin/apidesk/internal/util"
)

// ErrUnexpectedStatus is wrapped by StatusError.
var ErrUnexpectedStatus = errors.New("remote: unexpected status")

// StatusError reports a non-200 response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Config describes the remote service.
type Config struct {
	BaseURL         string
	EnvironmentPath string
	PingPath        string
	CatalogPath     string
	Timeout         time.Duration
	TLS             *tls.Config
	TokenSource     oauth2.TokenSource
	// Retry applies to every call; nil uses retry.DefaultRetryConfig with 5xx responses retried.
	Retry *retry.Config
}

// Client fetches remote data with resty. It implements envvars.RemoteSource.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *common.Logger
}

var _ envvars.RemoteSource = (*Client)(nil)

// New validates cfg, fills defaults and builds the client.
func New(cfg Config) (*Client, error) {
	if util.IsBlank(cfg.BaseURL) {
		return nil, errors.New("remote: base_url is required")
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.EnvironmentPath = util.TrimWithDefault(cfg.EnvironmentPath, constants.DefaultEnvironmentPath)
	cfg.PingPath = util.TrimWithDefault(cfg.PingPath, constants.DefaultPingPath)
	cfg.CatalogPath = util.TrimWithDefault(cfg.CatalogPath, constants.DefaultCatalogPath)
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultRemoteTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetry()
	}
	h := httpc.Httpc{TlsConfig: cfg.TLS, Timeout: cfg.Timeout, TokenSource: cfg.TokenSource}
	return &Client{
		cfg:    cfg,
		http:   h.New(),
		logger: common.GetLogger().WithComponent("remote"),
	}, nil
}

// DefaultRetry retries connection failures and server errors.
func DefaultRetry() *retry.Config {
	rc := retry.DefaultRetryConfig()
	rc.Retryable = func(err error) bool {
		var se *StatusError
		return errors.As(err, &se) && se.Code >= http.StatusInternalServerError
	}
	return rc
}

// FetchEnvironment returns the declared environment schema.
func (c *Client) FetchEnvironment(ctx context.Context) (*envvars.Environment, error) {
	var env envvars.Environment
	if err := c.getJSON(ctx, c.cfg.EnvironmentPath, &env); err != nil {
		return nil, fmt.Errorf("fetch environment: %w", err)
	}
	return &env, nil
}

// ProbeLiveness returns the remote uptime fingerprint.
func (c *Client) ProbeLiveness(ctx context.Context) (envvars.Liveness, error) {
	var pong envvars.Liveness
	if err := c.getJSON(ctx, c.cfg.PingPath, &pong); err != nil {
		return envvars.Liveness{}, fmt.Errorf("liveness probe: %w", err)
	}
	return pong, nil
}

// FetchCatalog returns the endpoint catalog published by the remote.
func (c *Client) FetchCatalog(ctx context.Context) (*catalog.Document, error) {
	var doc catalog.Document
	if err := c.getJSON(ctx, c.cfg.CatalogPath, &doc); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return &doc, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := util.JoinURL(c.cfg.BaseURL, path)
	logger := c.logger.WithRequest(http.MethodGet, url)
	return retry.WithRetry(ctx, c.cfg.Retry, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			SetResult(out).
			Get(url)
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusOK {
			logger.Debug("unexpected response", "status", resp.StatusCode(), "body", common.MaskSensitiveData(resp.String()))
			return &StatusError{Method: http.MethodGet, URL: url, Code: resp.StatusCode()}
		}
		logger.Debug("remote call succeeded", "duration", resp.Time())
		return nil
	})
}
