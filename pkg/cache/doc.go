// Package cache provides a small in-memory TTL cache.
//
// It is used for slow-changing lookup data such as column metadata
// fetched from INFORMATION_SCHEMA, where refetching on every statement
// would add a round trip per call. Entries expire after a per-entry
// TTL and are reaped by a background janitor.
//
// Usage:
//
//	c := cache.New[[]string](cache.WithJanitorInterval(time.Minute))
//	defer c.Close()
//
//	c.Set("orders.columns", cols, 10*time.Minute)
//	cols, ok := c.Get("orders.columns")
package cache
