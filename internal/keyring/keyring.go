// Package keyring stores the brokerage OAuth credentials in the system
// keyring, with environment variable overrides for headless use.
package keyring

import (
	"errors"
	"fmt"
	"os"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/jonandersen/etrade-cli/internal/session"
)

// ServiceName is the keyring service name for storing secrets.
const ServiceName = "com.etrade.etr"

// Keyring keys for the four OAuth 1.0a values.
const (
	KeyConsumerKey       = "consumer_key"
	KeyConsumerSecret    = "consumer_secret"
	KeyAccessToken       = "access_token"
	KeyAccessTokenSecret = "access_token_secret"
)

// Keys lists every credential key in the order configure prompts for them.
var Keys = []string{KeyConsumerKey, KeyConsumerSecret, KeyAccessToken, KeyAccessTokenSecret}

// envVars maps keyring keys to the environment variables that override them.
var envVars = map[string]string{
	KeyConsumerKey:       "ETR_CONSUMER_KEY",
	KeyConsumerSecret:    "ETR_CONSUMER_SECRET",
	KeyAccessToken:       "ETR_ACCESS_TOKEN",
	KeyAccessTokenSecret: "ETR_ACCESS_TOKEN_SECRET",
}

// EnvVar returns the environment variable that overrides key, or "".
func EnvVar(key string) string {
	return envVars[key]
}

// ErrNotFound is returned when a secret is not found in the keyring.
var ErrNotFound = errors.New("secret not found")

// Store provides an interface for secure secret storage.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SystemStore implements Store using the system keyring.
type SystemStore struct{}

// NewSystemStore creates a new system keyring store.
func NewSystemStore() *SystemStore {
	return &SystemStore{}
}

// Get retrieves a secret from the system keyring.
func (s *SystemStore) Get(service, key string) (string, error) {
	secret, err := gokeyring.Get(service, key)
	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

// Set stores a secret in the system keyring.
func (s *SystemStore) Set(service, key, value string) error {
	return gokeyring.Set(service, key, value)
}

// Delete removes a secret from the system keyring. Deleting a missing
// secret is not an error.
func (s *SystemStore) Delete(service, key string) error {
	err := gokeyring.Delete(service, key)
	if err != nil && errors.Is(err, gokeyring.ErrNotFound) {
		return nil
	}
	return err
}

// EnvStore wraps another Store and checks the ETR_* environment variables
// first.
type EnvStore struct {
	underlying Store
}

// NewEnvStore creates a new EnvStore wrapping the given store.
func NewEnvStore(underlying Store) *EnvStore {
	return &EnvStore{underlying: underlying}
}

// Get returns the environment override for key when set, otherwise the
// underlying secret.
func (e *EnvStore) Get(service, key string) (string, error) {
	if name := EnvVar(key); name != "" {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return e.underlying.Get(service, key)
}

// Set stores a secret in the underlying store.
func (e *EnvStore) Set(service, key, value string) error {
	return e.underlying.Set(service, key, value)
}

// Delete removes a secret from the underlying store.
func (e *EnvStore) Delete(service, key string) error {
	return e.underlying.Delete(service, key)
}

// LoadCredentials reads all four credentials. It returns ErrNotFound when
// any of them is missing, which callers treat as "no brokerage session".
func LoadCredentials(store Store) (session.Credentials, error) {
	values := make(map[string]string, len(Keys))
	for _, key := range Keys {
		v, err := store.Get(ServiceName, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return session.Credentials{}, fmt.Errorf("%s: %w", key, ErrNotFound)
			}
			return session.Credentials{}, fmt.Errorf("failed to read %s: %w", key, err)
		}
		values[key] = v
	}

	return session.Credentials{
		ConsumerKey:       values[KeyConsumerKey],
		ConsumerSecret:    values[KeyConsumerSecret],
		AccessToken:       values[KeyAccessToken],
		AccessTokenSecret: values[KeyAccessTokenSecret],
	}, nil
}

// SaveCredentials stores all four credentials.
func SaveCredentials(store Store, creds session.Credentials) error {
	values := map[string]string{
		KeyConsumerKey:       creds.ConsumerKey,
		KeyConsumerSecret:    creds.ConsumerSecret,
		KeyAccessToken:       creds.AccessToken,
		KeyAccessTokenSecret: creds.AccessTokenSecret,
	}
	for _, key := range Keys {
		if err := store.Set(ServiceName, key, values[key]); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
	}
	return nil
}

// DeleteCredentials removes all four credentials.
func DeleteCredentials(store Store) error {
	for _, key := range Keys {
		if err := store.Delete(ServiceName, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}
