package rest

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry derives the effective expiry of the cached ID token. The exp
// claim is authoritative when the token parses; otherwise the expiry reported
// alongside the credential response is used.
func tokenExpiry(acct *account) time.Time {
	if acct.idToken != "" {
		claims := jwt.MapClaims{}
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(acct.idToken, claims); err == nil {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				return exp.Time
			}
		}
	}
	return acct.expiresAt
}
