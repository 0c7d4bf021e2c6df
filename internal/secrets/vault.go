// Package secrets holds credentials outside the main config so they can be
// rotated on SIGHUP without a restart.
package secrets

import (
	"fmt"
	"slices"
	"sync"
)

// Well-known secret keys.
const (
	JWTSecret           = "TASKTRACK_JWT_SECRET"
	SummarizerMasterKey = "TASKTRACK_SUMMARIZER_MASTER_KEY"
)

// Loader retrieves secrets from a source (env vars, a mounted file, ...).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Source returns a func reading key on every call, for consumers that
// must see rotated values.
func (v *Vault) Source(key string) func() string {
	return func() string { return v.Get(key) }
}

// Keys returns the names of the loaded secrets in sorted order.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}
