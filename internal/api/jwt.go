package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsKey is the gin context key holding verified jwt.MapClaims.
const ClaimsKey = "jwt_claims"

// JWTConfig configures HS256 bearer verification.
type JWTConfig struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// JWTMiddleware rejects requests without a valid HS256 bearer token.
func JWTMiddleware(cfg JWTConfig) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		if len(cfg.Secret) == 0 {
			abort(c, http.StatusInternalServerError, errors.New("jwt secret not configured"))
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			abort(c, http.StatusUnauthorized, errors.New("missing or invalid Authorization header"))
			return
		}
		claims := jwt.MapClaims{}
		tok, err := parser.ParseWithClaims(strings.TrimSpace(auth[len("Bearer "):]), claims, func(*jwt.Token) (any, error) {
			return cfg.Secret, nil
		})
		if err != nil || !tok.Valid {
			abort(c, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(cfg JWTConfig, subject string, ttl time.Duration) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("jwt: secret required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}
