// Package memory implements an in-process IdentityProvider for development
// and tests: accounts live in a map with bcrypt password hashes and
// auth-change emissions are synchronous.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	client "github.com/merlionapp/go-client"
)

const bcryptCost = bcrypt.DefaultCost

// Account is a registered identity.
type Account struct {
	UID          string
	Email        string
	DisplayName  string
	PasswordHash string
}

// Provider implements client.IdentityProvider without any network.
type Provider struct {
	mu       sync.Mutex
	accounts map[string]*Account
	current  *Account
	handlers map[int]client.AuthChangeHandler
	nextID   int

	// TokenFor overrides token minting for tests. Defaults to a stable
	// per-account opaque string.
	TokenFor func(uid string) string
}

func New() *Provider {
	return &Provider{
		accounts: map[string]*Account{},
		handlers: map[int]client.AuthChangeHandler{},
	}
}

var _ client.IdentityProvider = (*Provider)(nil)

// Seed registers an account without emitting any event. It returns the
// assigned UID.
func (p *Provider) Seed(email, password, displayName string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}

	acct := &Account{
		UID:          uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[email]; exists {
		return "", fmt.Errorf("memory: account exists: %s", email)
	}
	p.accounts[email] = acct
	return acct.UID, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*client.IdentityUser, error) {
	p.mu.Lock()
	acct, ok := p.accounts[email]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("memory: unknown account: %s", email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("memory: wrong password for %s", email)
	}

	p.mu.Lock()
	p.current = acct
	p.mu.Unlock()

	user := identityUser(acct)
	p.emit(user)
	return user, nil
}

func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*client.IdentityUser, error) {
	if _, err := p.Seed(email, password, ""); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct := p.accounts[email]
	p.current = acct
	p.mu.Unlock()

	user := identityUser(acct)
	p.emit(user)
	return user, nil
}

func (p *Provider) UpdateDisplayName(ctx context.Context, displayName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return fmt.Errorf("memory: no signed-in account")
	}
	p.current.DisplayName = displayName
	return nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.emit(nil)
	return nil
}

func (p *Provider) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	acct := p.current
	mint := p.TokenFor
	p.mu.Unlock()

	if acct == nil {
		return "", nil
	}
	if mint != nil {
		return mint(acct.UID), nil
	}
	return "memory-token-" + acct.UID, nil
}

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

// Start fires the initial emission. Memory sessions never survive a restart,
// so the initial state is the current in-process account (nil after New).
func (p *Provider) Start(ctx context.Context) {
	p.mu.Lock()
	acct := p.current
	p.mu.Unlock()

	p.emit(identityUser(acct))
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

func identityUser(acct *Account) *client.IdentityUser {
	if acct == nil {
		return nil
	}
	return &client.IdentityUser{
		UID:         acct.UID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
	}
}
