package httpc

import (
	"context"
	"errors"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentialsConfig holds configuration for the Client Credentials grant.
type ClientCredentialsConfig struct {
	ClientID  string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSec string   `mapstructure:"client_secret" yaml:"client_secret"`
	TokenURL  string   `mapstructure:"token_url" yaml:"token_url"`
	Scopes    []string `mapstructure:"scopes" yaml:"scopes"`
}

// DecodeClientCredentials decodes a loosely typed config map.
func DecodeClientCredentials(m map[string]any) (ClientCredentialsConfig, error) {
	var c ClientCredentialsConfig
	if err := mapstructure.Decode(m, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the required fields.
func (c ClientCredentialsConfig) Validate() error {
	if strings.TrimSpace(c.TokenURL) == "" {
		return errors.New("oauth2: token_url is required for client_credentials grant")
	}
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSec) == "" {
		return errors.New("oauth2: client_id and client_secret are required for client_credentials grant")
	}
	return nil
}

// TokenSource returns a caching token source for the grant.
func (c ClientCredentialsConfig) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSec),
		TokenURL:     strings.TrimSpace(c.TokenURL),
		Scopes:       c.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx), nil
}
