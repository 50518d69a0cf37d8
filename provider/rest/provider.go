// Package rest implements the IdentityProvider surface over a hosted
// email/password identity service exposing identity-toolkit style REST
// endpoints. The refresh token is persisted through the client Storage so a
// restarted process can restore its session before the first network call
// completes.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	client "github.com/merlionapp/go-client"
)

// StorageKeyRefreshToken persists the provider refresh token between runs.
const StorageKeyRefreshToken = "providerRefreshToken"

// expirySkew refreshes tokens slightly before their reported expiry.
const expirySkew = 30 * time.Second

// Config configures the REST identity provider.
type Config struct {
	// Endpoint is the account API base, e.g.
	// https://identitytoolkit.googleapis.com/v1.
	Endpoint string

	// TokenEndpoint is the token refresh base, e.g.
	// https://securetoken.googleapis.com/v1.
	TokenEndpoint string

	// APIKey is the project API key appended to every call.
	APIKey string

	// Storage persists the refresh token. Optional; without it sessions do
	// not survive a restart.
	Storage client.Storage

	HTTPClient *http.Client
	Logger     client.Logger
}

type account struct {
	uid          string
	email        string
	displayName  string
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

// Provider implements client.IdentityProvider.
type Provider struct {
	cfg    Config
	httpc  *http.Client
	logger client.Logger

	mu       sync.Mutex
	current  *account
	handlers map[int]client.AuthChangeHandler
	nextID   int
}

// New creates a REST-backed identity provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("rest: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rest: api key is required")
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Provider{
		cfg:      cfg,
		httpc:    httpc,
		logger:   logger,
		handlers: map[int]client.AuthChangeHandler{},
	}, nil
}

var _ client.IdentityProvider = (*Provider)(nil)

type credentialResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshResponse struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn authenticates an email/password pair and emits a signed-in event.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*client.IdentityUser, error) {
	cred := credentialResponse{}
	err := p.call(ctx, p.cfg.Endpoint+"/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &cred)
	if err != nil {
		return nil, fmt.Errorf("rest: sign in: %w", err)
	}

	return p.install(cred), nil
}

// CreateAccount registers a new email/password account and emits a signed-in
// event.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*client.IdentityUser, error) {
	cred := credentialResponse{}
	err := p.call(ctx, p.cfg.Endpoint+"/accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &cred)
	if err != nil {
		return nil, fmt.Errorf("rest: create account: %w", err)
	}

	return p.install(cred), nil
}

// UpdateDisplayName sets the display name on the current account.
func (p *Provider) UpdateDisplayName(ctx context.Context, displayName string) error {
	p.mu.Lock()
	acct := p.current
	p.mu.Unlock()

	if acct == nil {
		return fmt.Errorf("rest: no signed-in account")
	}

	err := p.call(ctx, p.cfg.Endpoint+"/accounts:update", map[string]any{
		"idToken":           acct.idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}, &struct{}{})
	if err != nil {
		return fmt.Errorf("rest: update display name: %w", err)
	}

	p.mu.Lock()
	if p.current != nil {
		p.current.displayName = displayName
	}
	p.mu.Unlock()
	return nil
}

// SignOut discards the local provider session and emits a signed-out event.
// The hosted service keeps no server-side session for password accounts, so
// there is nothing to revoke remotely.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	if p.cfg.Storage != nil {
		p.cfg.Storage.Delete(StorageKeyRefreshToken)
	}

	p.emit(nil)
	return nil
}

// IDToken returns the current bearer token, refreshing it when it is close to
// expiry or when forceRefresh is set. Returns "" when signed out.
func (p *Provider) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	acct := p.current
	p.mu.Unlock()

	if acct == nil {
		return "", nil
	}

	if !forceRefresh && acct.idToken != "" && time.Until(tokenExpiry(acct)) > expirySkew {
		return acct.idToken, nil
	}

	refreshed, err := p.refresh(ctx, acct.refreshToken)
	if err != nil {
		return "", fmt.Errorf("rest: token refresh: %w", err)
	}
	return refreshed.idToken, nil
}

// OnAuthChange registers a handler, returning its unsubscribe function.
func (p *Provider) OnAuthChange(handler client.AuthChangeHandler) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

// Start restores a persisted session, then fires the initial auth-change
// emission reflecting the restored state.
func (p *Provider) Start(ctx context.Context) {
	var restored *client.IdentityUser

	if p.cfg.Storage != nil {
		if refreshToken, ok := p.cfg.Storage.Get(StorageKeyRefreshToken); ok && refreshToken != "" {
			acct, err := p.refresh(ctx, refreshToken)
			if err != nil {
				p.logger.Warn("rest: session restore failed: %v", err)
			} else {
				restored = p.lookup(ctx, acct)
			}
		}
	}

	p.emit(restored)
}

func (p *Provider) install(cred credentialResponse) *client.IdentityUser {
	acct := &account{
		uid:          cred.LocalID,
		email:        cred.Email,
		displayName:  cred.DisplayName,
		idToken:      cred.IDToken,
		refreshToken: cred.RefreshToken,
		expiresAt:    expiresAt(cred.ExpiresIn),
	}

	p.mu.Lock()
	p.current = acct
	p.mu.Unlock()

	if p.cfg.Storage != nil {
		p.cfg.Storage.Set(StorageKeyRefreshToken, acct.refreshToken)
	}

	user := identityUser(acct)
	p.emit(user)
	return user
}

func (p *Provider) refresh(ctx context.Context, refreshToken string) (*account, error) {
	tokenEndpoint := p.cfg.TokenEndpoint
	if tokenEndpoint == "" {
		tokenEndpoint = p.cfg.Endpoint
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		tokenEndpoint+"/token?key="+url.QueryEscape(p.cfg.APIKey),
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s", apiMessage(raw, resp.StatusCode))
	}

	out := refreshResponse{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct := p.current
	if acct == nil {
		acct = &account{}
		p.current = acct
	}
	acct.uid = out.UserID
	acct.idToken = out.IDToken
	acct.refreshToken = out.RefreshToken
	acct.expiresAt = expiresAt(out.ExpiresIn)
	p.mu.Unlock()

	if p.cfg.Storage != nil {
		p.cfg.Storage.Set(StorageKeyRefreshToken, out.RefreshToken)
	}

	return acct, nil
}

// lookup resolves account profile fields after a refresh-based restore.
func (p *Provider) lookup(ctx context.Context, acct *account) *client.IdentityUser {
	out := struct {
		Users []struct {
			LocalID     string `json:"localId"`
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
		} `json:"users"`
	}{}

	err := p.call(ctx, p.cfg.Endpoint+"/accounts:lookup", map[string]any{
		"idToken": acct.idToken,
	}, &out)
	if err != nil || len(out.Users) == 0 {
		if err != nil {
			p.logger.Warn("rest: account lookup failed: %v", err)
		}
		return identityUser(acct)
	}

	p.mu.Lock()
	if p.current != nil {
		p.current.email = out.Users[0].Email
		p.current.displayName = out.Users[0].DisplayName
		if out.Users[0].LocalID != "" {
			p.current.uid = out.Users[0].LocalID
		}
		acct = p.current
	}
	p.mu.Unlock()

	return identityUser(acct)
}

func (p *Provider) call(ctx context.Context, endpoint string, body map[string]any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint+"?key="+url.QueryEscape(p.cfg.APIKey),
		bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", apiMessage(raw, resp.StatusCode))
	}

	return json.Unmarshal(raw, out)
}

func (p *Provider) emit(user *client.IdentityUser) {
	p.mu.Lock()
	handlers := make([]client.AuthChangeHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(user)
	}
}

func identityUser(acct *account) *client.IdentityUser {
	if acct == nil {
		return nil
	}
	return &client.IdentityUser{
		UID:         acct.uid,
		Email:       acct.email,
		DisplayName: acct.displayName,
	}
}

func apiMessage(raw []byte, status int) string {
	out := apiError{}
	if err := json.Unmarshal(raw, &out); err == nil && out.Error.Message != "" {
		return out.Error.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

func expiresAt(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
