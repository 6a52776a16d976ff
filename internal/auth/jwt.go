// Package auth provides bearer-token authentication middleware.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
	"github.com/axenox/Sketch/internal/protocol"
)

type contextKey string

const (
	userContextKey contextKey = "user"
)

const issuer = "sketch"

// ErrNoSecret is returned when local tokens are issued or validated without
// a signing secret.
var ErrNoSecret = errors.New("no signing secret configured")

// Claims holds token claims. An empty Tenants list grants every tenant.
type Claims struct {
	Tenants []string `json:"tenants,omitempty"`
	jwt.RegisteredClaims
}

// AllowsTenant reports whether the claims grant access to tenant
// ("vendor/alias").
func (c *Claims) AllowsTenant(tenant string) bool {
	return len(c.Tenants) == 0 || slices.Contains(c.Tenants, tenant)
}

// TokenValidator validates tokens issued by someone else, e.g. an OIDC
// provider.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Auth handles bearer-token authentication.
type Auth struct {
	secret []byte
	oidc   TokenValidator
}

// New creates a new Auth handler signing with jwtSecret.
func New(jwtSecret string) *Auth {
	return &Auth{
		secret: []byte(jwtSecret),
	}
}

// SetOIDCProvider sets a fallback validator tried when local validation
// fails.
func (a *Auth) SetOIDCProvider(v TokenValidator) {
	a.oidc = v
}

// IssueToken signs a token for subject, limited to tenants when non-empty.
func (a *Auth) IssueToken(subject string, tenants []string, ttl time.Duration) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := &Claims{
		Tenants: tenants,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, expires, nil
}

// ValidateToken checks a locally issued HS256 token. Without a secret no
// token is valid.
func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware returns HTTP middleware that requires a valid token. Local
// tokens are tried first, then the OIDC provider if one is set. When the
// route carries {vendor} and {alias}, the claims must grant that tenant.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt("none", false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		method := "jwt"
		claims, err := a.ValidateToken(tokenStr)
		if err != nil && a.oidc != nil {
			method = "oidc"
			claims, err = a.oidc.ValidateToken(r.Context(), tokenStr)
		}
		if err != nil {
			metrics.RecordAuthAttempt(method, false)
			logging.WithContext(r.Context()).Debug("token rejected",
				zap.String("method", method),
				zap.Error(err),
			)
			sendAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		metrics.RecordAuthAttempt(method, true)

		if vendor, alias := r.PathValue("vendor"), r.PathValue("alias"); vendor != "" && alias != "" {
			if !claims.AllowsTenant(vendor + "/" + alias) {
				sendAuthError(w, http.StatusForbidden, "token does not grant access to this app")
				return
			}
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		ctx = logging.WithFields(ctx, zap.String("subject", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

// Subject returns the authenticated subject in ctx, or "".
func Subject(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Query parameter fallback, used by EventSource clients
	return r.URL.Query().Get("token")
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
