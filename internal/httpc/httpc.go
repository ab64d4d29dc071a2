package httpc

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/loykin/apidesk/internal/util"
)

// Httpc describes how outbound clients for the remote environment service are built.
type Httpc struct {
	TlsConfig *tls.Config
	Timeout   time.Duration
	// TokenSource, when set, attaches a bearer token to every request.
	TokenSource oauth2.TokenSource
}

// New returns a resty.Client configured according to the receiver's TLS and auth settings.
// Defaults: MinVersion TLS1.3 when MinVersion is zero.
func (h *Httpc) New() *resty.Client {
	var c *resty.Client
	if h.TokenSource != nil {
		c = resty.NewWithClient(&http.Client{Transport: &oauth2.Transport{Source: h.TokenSource, Base: h.transport()}})
	} else {
		c = resty.New()
		if cfg := h.tlsConfig(); cfg != nil {
			c.SetTLSClientConfig(cfg)
		}
	}
	if h.Timeout > 0 {
		c.SetTimeout(h.Timeout)
	}
	return c
}

func (h *Httpc) tlsConfig() *tls.Config {
	cfg := h.TlsConfig
	if cfg == nil {
		return nil
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS13
	}
	return cfg
}

func (h *Httpc) transport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	t := base.Clone()
	if cfg := h.tlsConfig(); cfg != nil {
		t.TLSClientConfig = cfg
	}
	return t
}

// ParseTLSVersion maps "1.2", "tls1.3" and similar spellings to a tls version constant.
// Unknown or empty values return 0.
func ParseTLSVersion(version string) uint16 {
	switch util.TrimAndLower(version) {
	case "1.0", "10", "tls1.0", "tls10":
		return tls.VersionTLS10
	case "1.1", "11", "tls1.1", "tls11":
		return tls.VersionTLS11
	case "1.2", "12", "tls1.2", "tls12":
		return tls.VersionTLS12
	case "1.3", "13", "tls1.3", "tls13":
		return tls.VersionTLS13
	default:
		return 0
	}
}

// TLSConfig builds a tls.Config from textual bounds. It returns nil when nothing is set.
func TLSConfig(minVersion, maxVersion string, insecure bool) *tls.Config {
	minV := ParseTLSVersion(minVersion)
	maxV := ParseTLSVersion(maxVersion)
	if minV == 0 && maxV == 0 && !insecure {
		return nil
	}
	cfg := &tls.Config{MinVersion: minV, MaxVersion: maxV}
	if minV == 0 && maxV != 0 && maxV < tls.VersionTLS13 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if insecure {
		// #nosec G402 -- explicitly requested for self-signed development servers
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
