package config

import (
	"context"
	"fmt"
	"os"
)

// SecretStore resolves secrets such as the webhook signing secret or database
// credentials. The environment-backed store is the only implementation today;
// a vault-backed one would satisfy the same interface.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, fallback string) string
}

type environmentSecretStore struct{}

// NewEnvironmentSecretStore returns a SecretStore backed by process
// environment variables.
func NewEnvironmentSecretStore() SecretStore {
	return environmentSecretStore{}
}

func (environmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret not set: %s", key)
	}
	return v, nil
}

func (s environmentSecretStore) GetWithDefault(ctx context.Context, key, fallback string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return v
}
