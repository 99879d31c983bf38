// Package registry maps sender identifiers to webhook destinations.
//
// A Registry is built once at startup and never mutated afterwards, so it is
// shared between connection handlers by pointer without locking.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/tuokri/tklserver/errors"
)

// IdentLength is the number of characters in a sender identifier.
const IdentLength = 4

// Destination is the credential pair of one webhook.
type Destination struct {
	ID    uint64
	Token string
}

// String hides the token.
func (d Destination) String() string {
	return fmt.Sprintf("webhook(%d)", d.ID)
}

// Resolver turns a webhook URL into its destination credentials.
type Resolver interface {
	Resolve(ctx context.Context, webhookURL string) (Destination, error)
}

// Registry is an immutable ident to destination table.
type Registry struct {
	entries map[string]Destination
}

// New builds a registry from an already resolved table. The map is copied.
func New(entries map[string]Destination) *Registry {
	r := &Registry{entries: make(map[string]Destination, len(entries))}
	for ident, dest := range entries {
		r.entries[ident] = dest
	}
	return r
}

// Load resolves every source independently. Sources that fail to resolve, or
// whose ident is not IdentLength characters, are logged and left out.
func Load(ctx context.Context, sources map[string]string, resolver Resolver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default().With("component", "registry")
	}

	idents := make([]string, 0, len(sources))
	for ident := range sources {
		idents = append(idents, ident)
	}
	sort.Strings(idents)

	r := &Registry{entries: make(map[string]Destination, len(sources))}
	for _, ident := range idents {
		webhookURL := sources[ident]
		if n := utf8.RuneCountInString(ident); n != IdentLength {
			logger.Warn("Skipping source with malformed ident",
				"ident", ident, "length", n, "want", IdentLength)
			continue
		}
		if webhookURL == "" {
			logger.Warn("Skipping source without webhook_url", "ident", ident)
			continue
		}

		dest, err := resolver.Resolve(ctx, webhookURL)
		if err != nil {
			logger.Error("Failed to resolve webhook, source disabled",
				"ident", ident, "error", err, "class", errors.Classify(err).String())
			continue
		}

		r.entries[ident] = dest
		logger.Info("Registered source", "ident", ident, "webhook_id", dest.ID)
	}

	return r
}

// Lookup returns the destination for ident.
func (r *Registry) Lookup(ident string) (Destination, bool) {
	if r == nil {
		return Destination{}, false
	}
	dest, ok := r.entries[ident]
	return dest, ok
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Idents returns the registered idents in sorted order.
func (r *Registry) Idents() []string {
	if r == nil {
		return nil
	}
	idents := make([]string, 0, len(r.entries))
	for ident := range r.entries {
		idents = append(idents, ident)
	}
	sort.Strings(idents)
	return idents
}
