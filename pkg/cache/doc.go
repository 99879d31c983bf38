// Package cache provides a generic, thread-safe key/value cache.
//
// The asset cache stores one entry per kill icon and swaps a raw entry for its
// decoded form on first use:
//
//	slots, err := cache.NewSimple[entry](cache.WithMetrics[entry](registry, "asset-cache"))
//	if err != nil {
//	    return err
//	}
//	slots.Set("Rifle", rawEntry)
//	...
//	slots.Set("Rifle", materializedEntry) // replaces in place
//
// Statistics are always collected; Prometheus export is opt-in with WithMetrics.
package cache
