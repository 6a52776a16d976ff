package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/logging"
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL   string // e.g. https://keycloak.example.com/realms/sketch
	ClientID    string
	TenantClaim string // claim listing granted tenants (default: "tenants")
}

// OIDCProvider validates OIDC ID tokens.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   OIDCConfig
}

// NewOIDCProvider creates an OIDC provider from config.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	if cfg.TenantClaim == "" {
		cfg.TenantClaim = "tenants"
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return &OIDCProvider{
		verifier: verifier,
		config:   cfg,
	}, nil
}

// ValidateToken verifies tokenStr as an OIDC ID token and maps it to local
// claims.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	var oidcClaims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&oidcClaims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	// Prefer preferred_username, fall back to email, then sub.
	subject := oidcClaims.PreferredUsername
	if subject == "" {
		subject = oidcClaims.Email
	}
	if subject == "" {
		subject = oidcClaims.Sub
	}

	var rawClaims map[string]interface{}
	if err := idToken.Claims(&rawClaims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	return &Claims{
		Tenants: stringList(rawClaims[o.config.TenantClaim]),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    idToken.Issuer,
			ExpiresAt: jwt.NewNumericDate(idToken.Expiry),
		},
	}, nil
}

// stringList accepts a JSON array of strings or a single string.
func stringList(v interface{}) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
