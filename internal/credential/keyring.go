// Package credential stores the basic auth password in the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "ews-client"

// ErrNotFound is returned when no password is stored for a user.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes passwords keyed by username.
type Store struct {
	ring keyring.Keyring
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/ews-client/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("ews-client-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// Password retrieves the password stored for username.
func (s *Store) Password(username string) (string, error) {
	item, err := s.ring.Get(key(username))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting password for %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting password for %q: %w", username, err)
	}
	return string(item.Data), nil
}

// SetPassword stores password for username.
func (s *Store) SetPassword(username, password string) error {
	err := s.ring.Set(keyring.Item{
		Key:         key(username),
		Data:        []byte(password),
		Label:       "EWS password for " + username,
		Description: "ews-client basic auth",
	})
	if err != nil {
		return fmt.Errorf("setting password for %q: %w", username, err)
	}
	return nil
}

// Forget removes the password stored for username.
func (s *Store) Forget(username string) error {
	// Backends disagree on whether removing a missing key is an error.
	if _, err := s.ring.Get(key(username)); errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting password for %q: %w", username, ErrNotFound)
	}
	if err := s.ring.Remove(key(username)); err != nil {
		return fmt.Errorf("deleting password for %q: %w", username, err)
	}
	return nil
}

func key(username string) string {
	return "password:" + username
}
