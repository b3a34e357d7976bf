package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/glyphio/glyphio/internal/pkg/config"
)

// ErrUnauthenticated is returned for invalid, expired or unknown tokens.
var ErrUnauthenticated = errors.New("invalid session")

// Identity is the verified account behind a bearer token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider exchanges a bearer token for the identity it belongs to.
type Provider interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// HTTPProvider validates tokens against the auth backend's user endpoint
// (GoTrue-style: GET {base}/auth/v1/user with the anon API key and the
// caller's bearer token).
type HTTPProvider struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewHTTPProvider(cfg *config.Config) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.AuthBaseURL,
		anonKey: cfg.AuthAnonKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPProvider) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("identity response undecodable: %w", err)
	}
	if ident.ID == "" {
		return nil, ErrUnauthenticated
	}
	return &ident, nil
}
