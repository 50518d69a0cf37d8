package client

import (
	"os"

	"github.com/joho/godotenv"
)

// DefaultBaseURL is the backend endpoint used when none is configured or
// persisted.
const DefaultBaseURL = "http://localhost:5000"

// Config carries the environment-supplied settings for the client stack.
type Config struct {
	// BaseURL is the default backend endpoint; a persisted override in
	// Storage still wins.
	BaseURL string

	// StorageDSN is the sqlite DSN for the durable key store.
	StorageDSN string

	// ProviderEndpoint and ProviderAPIKey configure the hosted identity
	// provider's REST surface.
	ProviderEndpoint string
	ProviderAPIKey   string
}

// LoadConfig reads configuration from the environment, honoring a local .env
// file when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		BaseURL:          envOr("API_BASE_URL", DefaultBaseURL),
		StorageDSN:       envOr("CLIENT_STORAGE_DSN", "file:client.db?cache=shared"),
		ProviderEndpoint: os.Getenv("IDENTITY_ENDPOINT"),
		ProviderAPIKey:   os.Getenv("IDENTITY_API_KEY"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
