package client

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityUser is the opaque user record emitted by the identity provider.
type IdentityUser struct {
	UID         string
	Email       string
	DisplayName string
}

// AuthChangeHandler receives provider auth-change emissions. The user is nil
// when the provider reports a signed-out state.
type AuthChangeHandler func(user *IdentityUser)

// IdentityProvider is the surface we consume from the hosted identity
// service. Implementations must emit exactly one initial auth-change event
// reflecting restored session state once Start is called.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*IdentityUser, error)
	CreateAccount(ctx context.Context, email, password string) (*IdentityUser, error)
	UpdateDisplayName(ctx context.Context, displayName string) error
	SignOut(ctx context.Context) error

	// IDToken returns the current bearer token or "" when signed out.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)

	// OnAuthChange registers a handler for auth-change emissions. It returns
	// an unsubscribe function.
	OnAuthChange(handler AuthChangeHandler) func()

	// Start restores any persisted provider session and fires the initial
	// auth-change emission.
	Start(ctx context.Context)
}

// Storage is durable local storage for session material. Implementations must
// never propagate storage failures; a failed read behaves as a miss and a
// failed write degrades to in-memory-only state for that call.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// Storage keys shared by the session store and the HTTP client.
const (
	StorageKeyToken       = "authToken"
	StorageKeyUser        = "user"
	StorageKeyManualToken = "manualToken"
	StorageKeyBaseURL     = "baseUrl"
)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] CLIENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] CLIENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] CLIENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] CLIENT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
