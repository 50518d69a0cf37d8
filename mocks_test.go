package client_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	client "github.com/merlionapp/go-client"
)

// MockIdentityProvider implements client.IdentityProvider.
type MockIdentityProvider struct {
	mock.Mock

	handler client.AuthChangeHandler
}

func (m *MockIdentityProvider) SignIn(ctx context.Context, email, password string) (*client.IdentityUser, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*client.IdentityUser)
	return user, args.Error(1)
}

func (m *MockIdentityProvider) CreateAccount(ctx context.Context, email, password string) (*client.IdentityUser, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(0).(*client.IdentityUser)
	return user, args.Error(1)
}

func (m *MockIdentityProvider) UpdateDisplayName(ctx context.Context, displayName string) error {
	args := m.Called(ctx, displayName)
	return args.Error(0)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	args := m.Called(ctx, forceRefresh)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityProvider) OnAuthChange(handler client.AuthChangeHandler) func() {
	m.handler = handler
	return func() { m.handler = nil }
}

func (m *MockIdentityProvider) Start(ctx context.Context) {
	if m.handler != nil {
		m.handler(nil)
	}
}

// Emit simulates a provider auth-change emission.
func (m *MockIdentityProvider) Emit(user *client.IdentityUser) {
	if m.handler != nil {
		m.handler(user)
	}
}
