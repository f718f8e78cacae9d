package auth

import (
	"os"
	"time"
)

// TokenEnv is the environment variable holding an access token
const TokenEnv = "WEIBOHARVEST_ACCESS_TOKEN"

const envAccount = "env"

// EnvironmentStore is a read-only CredentialStore over TokenEnv
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment token as the account "env"
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := os.Getenv(TokenEnv)
	if token == "" {
		return nil, ErrCredentialsNotFound
	}
	switch name {
	case "", envAccount:
		name = envAccount
	default:
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Name:         name,
		AccessToken:  token,
		Source:       "environment",
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if the variable is set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment token is set
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(TokenEnv) != ""
}
