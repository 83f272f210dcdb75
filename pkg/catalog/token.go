package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// expirySlack is subtracted from the advertised token lifetime so we refresh
// slightly before the source considers the token expired.
const expirySlack = 30 * time.Second

// TokenSource provides bearer tokens for catalog API requests.
type TokenSource interface {
	// Token returns a valid token, fetching a new one if the cached token
	// has expired.
	Token(ctx context.Context) (string, error)

	// Invalidate drops the cached token so the next Token call fetches a
	// fresh one. Called after the API rejects the current token.
	Invalidate()
}

// ClientCredentialsConfig configures the client-credentials token source.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client    // optional
	Clock        clockwork.Clock // optional
}

func (c *ClientCredentialsConfig) Validate() error {
	if c.TokenURL == "" {
		return fmt.Errorf("token URL is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("client credentials are required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// ClientCredentials implements TokenSource using the OAuth2 client
// credentials flow. Tokens are cached until shortly before expiry.
type ClientCredentials struct {
	cfg ClientCredentialsConfig

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewClientCredentials(cfg ClientCredentialsConfig) (*ClientCredentials, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ClientCredentials{cfg: cfg}, nil
}

func (t *ClientCredentials) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.cfg.Clock.Now().Before(t.expires) {
		return t.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(t.cfg.ClientID, t.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransientNetwork, Op: "token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := KindAuth
		if resp.StatusCode >= 500 {
			kind = KindTransientNetwork
		}
		return "", &Error{Kind: kind, Op: "token", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransientNetwork, Op: "token", Err: err}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", &Error{Kind: KindAuth, Op: "token", Status: resp.StatusCode, Err: fmt.Errorf("no access_token in response")}
	}

	t.token = payload.AccessToken
	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl > expirySlack {
		ttl -= expirySlack
	}
	t.expires = t.cfg.Clock.Now().Add(ttl)
	return t.token, nil
}

func (t *ClientCredentials) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expires = time.Time{}
}
