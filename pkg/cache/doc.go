// Package cache provides a generic, thread-safe TTL cache for in-memory
// storage of values with bounded staleness.
//
// Entries expire after a per-entry time-to-live and are lazily removed on
// access; an optional background janitor sweeps expired entries so the map
// does not grow without bound under write-heavy workloads.
//
// # Usage
//
// Create a cache and store values with a TTL:
//
//	c := cache.NewTTLCache[string, []byte]()
//	defer c.Close()
//
//	c.Set("wh:sub:123", data, 10*time.Minute)
//
//	data, found := c.Get("wh:sub:123")
//	if found {
//		// Entry exists and has not expired
//	}
//
//	c.Delete("wh:sub:123")
//
// # Thread Safety
//
// All operations are safe for concurrent use by multiple goroutines.
package cache
