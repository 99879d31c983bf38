package cache

import (
	"github.com/tuokri/tklserver/errors"
)

// Cache is a string-keyed store for values of type V.
// Implementations are safe for concurrent use.
type Cache[V any] interface {
	// Get looks key up and counts the result as a hit or a miss.
	Get(key string) (V, bool)

	// Set stores value under key. The bool is false when an existing value
	// was overwritten.
	Set(key string, value V) (bool, error)

	// Size is the number of stored keys.
	Size() int

	// Stats never returns nil.
	Stats() *Statistics
}

// NewSimple returns a map-backed Cache that keeps every entry until the
// process exits.
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	return newMapCache(applyOptions(options...))
}

func validateKey(key string) error {
	if key != "" {
		return nil
	}
	return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Set", "validate key")
}
