// Package assets serves kill icons by damage type.
//
// Icons come from a bundle loaded at startup. Each entry is either an image
// (base64, any supported format) or an alias to another key. Images are decoded
// and converted to PNG the first time they are requested; the PNG replaces the
// raw entry and is kept for the lifetime of the process.
package assets

import (
	"encoding/base64"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/metric"
	"github.com/tuokri/tklserver/pkg/cache"
)

// DefaultKey is the reserved key looked up for an empty damage type.
const DefaultKey = "__DEFAULT"

const aliasPrefix = "__"

type entryKind int

const (
	kindRaw entryKind = iota
	kindAlias
	kindPNG
)

// entry is one cache slot: an alias target, undecoded base64, or PNG bytes.
type entry struct {
	kind  entryKind
	value string
	png   []byte
}

// Deps holds runtime dependencies for the cache.
type Deps struct {
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry // optional
}

// Cache resolves damage types to PNG bytes. A nil *Cache is valid and
// reports every key absent.
type Cache struct {
	slots  cache.Cache[entry]
	keys   map[string]struct{} // fixed at load; existence checks skip slot stats
	group  singleflight.Group
	logger *slog.Logger
}

// Load reads the bundle at path and builds a cache from it.
func Load(path string, deps Deps) (*Cache, error) {
	bundle, err := ReadBundleFile(path)
	if err != nil {
		return nil, err
	}
	return New(bundle, deps)
}

// New builds a cache from a decoded bundle.
func New(bundle map[string]string, deps Deps) (*Cache, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "assets")
	}

	slots, err := cache.NewSimple[entry](cache.WithMetrics[entry](deps.MetricsRegistry, "asset-cache"))
	if err != nil {
		return nil, errors.WrapTransient(err, "assets", "New", "create slot cache")
	}

	c := &Cache{
		slots:  slots,
		keys:   make(map[string]struct{}, len(bundle)),
		logger: logger,
	}

	aliases := 0
	for key, value := range bundle {
		if key == "" {
			continue
		}
		e := entry{kind: kindRaw, value: value}
		if target, ok := strings.CutPrefix(value, aliasPrefix); ok {
			e = entry{kind: kindAlias, value: target}
			aliases++
		}
		if _, err := slots.Set(key, e); err != nil {
			return nil, errors.WrapInvalid(err, "assets", "New", "store "+key)
		}
		c.keys[key] = struct{}{}
	}

	logger.Info("Asset bundle loaded", "entries", len(c.keys), "aliases", aliases)
	return c, nil
}

// Len returns the number of keys in the bundle.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Stats returns the slot cache statistics, or nil for a nil cache.
func (c *Cache) Stats() *cache.Statistics {
	if c == nil {
		return nil
	}
	return c.slots.Stats()
}

// Get returns the PNG for key. The empty key is DefaultKey. Missing keys,
// alias cycles and undecodable images report absent. The returned slice is
// shared and must not be modified.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	if key == "" {
		key = DefaultKey
	}

	visited := make(map[string]struct{}, 2)
	for {
		if _, seen := visited[key]; seen {
			c.logger.Warn("Asset alias cycle", "key", key, "error", errors.ErrAliasCycle)
			return nil, false
		}
		visited[key] = struct{}{}

		e, ok := c.slots.Get(key)
		if !ok {
			return nil, false
		}

		switch e.kind {
		case kindPNG:
			return e.png, true
		case kindAlias:
			key = c.aliasTarget(e.value)
		default:
			return c.materialize(key)
		}
	}
}

// aliasTarget prefers the key as written and falls back to the reserved
// "__" namespace, so "__DEFAULT" aliases the default icon.
func (c *Cache) aliasTarget(target string) string {
	if _, ok := c.keys[target]; ok {
		return target
	}
	if _, ok := c.keys[aliasPrefix+target]; ok {
		return aliasPrefix + target
	}
	return target
}

func (c *Cache) materialize(key string) ([]byte, bool) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		e, ok := c.slots.Get(key)
		if !ok {
			return nil, errors.ErrKeyNotFound
		}
		if e.kind == kindPNG {
			return e.png, nil
		}

		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(e.value))
		if err != nil {
			return nil, errors.WrapInvalid(errors.Join(errors.ErrInvalidData, err), "assets", "materialize", "base64 decode")
		}
		data, err := Transcode(raw)
		if err != nil {
			return nil, err
		}

		if _, err := c.slots.Set(key, entry{kind: kindPNG, png: data}); err != nil {
			return nil, err
		}
		c.logger.Debug("Asset materialized", "key", key, "bytes", len(data))
		return data, nil
	})
	if err != nil {
		c.logger.Warn("Asset unavailable", "key", key, "error", err)
		return nil, false
	}
	return v.([]byte), true
}
