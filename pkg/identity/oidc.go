package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/arbiterhq/casedesk/pkg/config"
)

// OIDCProvider implements Provider against an OpenID Connect issuer.
// Token verification uses the issuer's discovered JWKS; admin operations
// call the issuer's admin REST API with the configured service token.
type OIDCProvider struct {
	cfg      config.IdentityConfig
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

// NewOIDCProvider discovers the issuer and builds the token verifier.
// Returns ErrNotConfigured when no issuer URL is set.
func NewOIDCProvider(ctx context.Context, cfg config.IdentityConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, ErrNotConfigured
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	return &OIDCProvider{
		cfg:      cfg,
		verifier: verifier,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Resolve verifies the bearer token and extracts the identity claims
func (p *OIDCProvider) Resolve(ctx context.Context, rawToken string) (*Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvalidToken
	}

	idToken, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		FullName:      claims.Name,
		EmailVerified: claims.EmailVerified,
		IssuedAt:      idToken.IssuedAt,
		ExpiresAt:     idToken.Expiry,
	}, nil
}

type adminUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password,omitempty"`
	EmailConfirm bool   `json:"email_confirm"`
}

type adminUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AdminCreateUser provisions an identity record through the admin API
func (p *OIDCProvider) AdminCreateUser(ctx context.Context, email, password string) (*Identity, error) {
	if p.cfg.AdminAPIURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(adminUserRequest{
		Email:        email,
		Password:     password,
		EmailConfirm: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.AdminAPIURL, "/")+"/users", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.adminDo(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("admin create user failed: status %d: %s", resp.StatusCode, detail)
	}

	var created adminUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Identity{Subject: created.ID, Email: created.Email}, nil
}

// AdminDeleteUser removes an identity record through the admin API.
// A 404 from the provider means the record is already gone, which is the
// outcome the compensating step wants.
func (p *OIDCProvider) AdminDeleteUser(ctx context.Context, subject string) error {
	if p.cfg.AdminAPIURL == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		strings.TrimRight(p.cfg.AdminAPIURL, "/")+"/users/"+subject, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.adminDo(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("admin delete user failed: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func (p *OIDCProvider) adminDo(req *http.Request) (*http.Response, error) {
	token := &oauth2.Token{AccessToken: p.cfg.ServiceToken, TokenType: "Bearer"}
	token.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin API request failed: %w", err)
	}
	return resp, nil
}
