package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const defaultKeyringService = "oauth-cli-kit"

// KeyringMirror keeps token cache copies in the OS credential store.
type KeyringMirror struct {
	service string
}

// NewKeyringMirror creates a mirror under the given keychain service name.
func NewKeyringMirror(service string) *KeyringMirror {
	if service == "" {
		service = defaultKeyringService
	}
	return &KeyringMirror{service: service}
}

func (m *KeyringMirror) Name() string { return "keyring" }

func (m *KeyringMirror) Push(_ context.Context, key string, payload []byte) error {
	if err := keyring.Set(m.service, key, string(payload)); err != nil {
		return fmt.Errorf("keyring store: set %s: %w", key, err)
	}
	return nil
}

func (m *KeyringMirror) Pull(_ context.Context, key string) ([]byte, error) {
	secret, err := keyring.Get(m.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keyring store: get %s: %w", key, err)
	}
	return []byte(secret), nil
}

func (m *KeyringMirror) Delete(_ context.Context, key string) error {
	if err := keyring.Delete(m.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring store: delete %s: %w", key, err)
	}
	return nil
}
