// Package credentials resolves provider API keys from service configuration
// and the operating system keyring.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/99designs/keyring"

	"github.com/yanqian/smart-notes/internal/domain/provider"
)

// ErrNotFound is returned when no source holds a key for the provider.
var ErrNotFound = provider.ErrKeyNotFound

// Source looks up the API key for a provider.
type Source = provider.KeySource

// Chain queries sources in order and returns the first key found.
type Chain []Source

// Lookup implements Source.
func (c Chain) Lookup(ctx context.Context, provider string) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		key, err := src.Lookup(ctx, provider)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if key != "" {
			return key, nil
		}
	}
	return "", ErrNotFound
}

// Static serves keys from configuration.
type Static map[string]string

// Lookup implements Source.
func (s Static) Lookup(_ context.Context, provider string) (string, error) {
	if key := strings.TrimSpace(s[provider]); key != "" {
		return key, nil
	}
	return "", ErrNotFound
}

// Keyring stores keys in the OS credential store under "<provider>_api_key".
type Keyring struct {
	ring keyring.Keyring
}

// OpenKeyring opens the platform keyring for serviceName.
func OpenKeyring(serviceName string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true,
		LibSecretCollectionName:  serviceName,
		KWalletAppID:             serviceName,
		KWalletFolder:            serviceName,
		WinCredPrefix:            serviceName,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return NewKeyring(ring), nil
}

// NewKeyring wraps an opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

func itemKey(provider string) string {
	return provider + "_api_key"
}

// Lookup implements Source.
func (k *Keyring) Lookup(_ context.Context, provider string) (string, error) {
	item, err := k.ring.Get(itemKey(provider))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return string(item.Data), nil
}

// Set stores a key.
func (k *Keyring) Set(provider, key string) error {
	if strings.TrimSpace(provider) == "" {
		return errors.New("provider is required")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("API key is empty")
	}
	return k.ring.Set(keyring.Item{
		Key:         itemKey(provider),
		Data:        []byte(key),
		Label:       provider + " API key",
		Description: "API key for " + provider + " used by Smart Notes",
	})
}

// Delete removes a key. Deleting a missing key returns ErrNotFound.
func (k *Keyring) Delete(provider string) error {
	if _, err := k.ring.Get(itemKey(provider)); errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	err := k.ring.Remove(itemKey(provider))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// Providers lists providers that have a stored key.
func (k *Keyring) Providers() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keyring: %w", err)
	}
	var out []string
	for _, key := range keys {
		if p, ok := strings.CutSuffix(key, "_api_key"); ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
