// Package source defines the domain models and interfaces for video discovery across catalog backends.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/oriontv-cli/oriontv/key"
	"github.com/spf13/viper"
)

// Backend defines the required capabilities of a catalog source.
type Backend interface {
	// Key returns the unique identifier of the source.
	Key() string

	// Name returns the human-readable display name of the source.
	Name() string

	// Search executes a query against the source to discover matching titles.
	// The returned total is the provider-reported match count, which may
	// exceed the delivered page.
	Search(ctx context.Context, query string) (items []*Item, total int, err error)

	// Detail retrieves the full record for a specific title id, including episode URLs.
	Detail(ctx context.Context, id string) (*Item, error)
}

// FromConfig builds the enabled backend set from configuration.
// Each entry has the form "key|display name|base URL"; malformed entries are rejected.
func FromConfig() ([]Backend, error) {
	entries := viper.GetStringSlice(key.SourcesAPIs)

	backends := make([]Backend, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, entry := range entries {
		parts := strings.SplitN(entry, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed source entry %q, want \"key|name|url\"", entry)
		}

		k, name, base := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])
		if k == "" || base == "" {
			return nil, fmt.Errorf("source entry %q is missing a key or base URL", entry)
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate source key %q", k)
		}
		seen[k] = true

		backends = append(backends, NewAPIBackend(k, name, base))
	}

	return backends, nil
}

// Get finds a configured backend by key.
func Get(backends []Backend, key string) (Backend, bool) {
	for _, b := range backends {
		if b.Key() == key {
			return b, true
		}
	}
	return nil, false
}
