package client

import (
	"context"
	"strings"
)

// CredentialStrategy yields a bearer token or reports a miss. Strategies must
// not fail; any internal error is contained and reported as a miss.
type CredentialStrategy func(ctx context.Context) (string, bool)

// CredentialResolver decides which bearer token to attach to outbound
// requests. Strategies are tried in order; the first non-empty result wins.
type CredentialResolver struct {
	strategies []CredentialStrategy
	logger     Logger
}

// NewCredentialResolver builds the default chain: an operator-supplied manual
// token from storage first, then the identity provider's current ID token.
func NewCredentialResolver(storage Storage, provider IdentityProvider) *CredentialResolver {
	return &CredentialResolver{
		logger: defLogger{},
		strategies: []CredentialStrategy{
			ManualTokenStrategy(storage),
			ProviderTokenStrategy(provider),
		},
	}
}

func (r *CredentialResolver) WithLogger(l Logger) *CredentialResolver {
	if l != nil {
		r.logger = l
	}
	return r
}

// Resolve returns the Authorization header to attach, or an empty map when no
// credential is available. It never fails.
func (r *CredentialResolver) Resolve(ctx context.Context) map[string]string {
	for _, strategy := range r.strategies {
		if strategy == nil {
			continue
		}
		if token, ok := strategy(ctx); ok {
			return map[string]string{"Authorization": "Bearer " + token}
		}
	}
	r.logger.Debug("credential resolve: no token available")
	return map[string]string{}
}

// ManualTokenStrategy reads an operator-supplied override token from storage.
func ManualTokenStrategy(storage Storage) CredentialStrategy {
	return func(context.Context) (string, bool) {
		if storage == nil {
			return "", false
		}
		raw, ok := storage.Get(StorageKeyManualToken)
		if !ok {
			return "", false
		}
		token := strings.TrimSpace(raw)
		if token == "" {
			return "", false
		}
		return token, true
	}
}

// ProviderTokenStrategy fetches the identity provider's current ID token.
// Provider failures degrade to a miss.
func ProviderTokenStrategy(provider IdentityProvider) CredentialStrategy {
	return func(ctx context.Context) (string, bool) {
		if provider == nil {
			return "", false
		}
		token, err := provider.IDToken(ctx, false)
		if err != nil || token == "" {
			return "", false
		}
		return token, true
	}
}
