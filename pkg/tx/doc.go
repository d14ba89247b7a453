// Package tx binds transactions to pooled connections and guarantees
// rollback-on-release safety.
//
// A Coordinator registers at most one transaction per connection. Begin is
// idempotent: a second Begin on the same connection returns the existing
// open transaction instead of creating a nested one, because a TDS session
// holds a single transaction scope. Commit and Rollback always clear the
// connection's registry entry, success or error, so a connection never
// appears "in a transaction" after either call returns.
//
// The coordinator's ReleaseHook plugs into the pool's release path: if a
// caller releases a connection while its transaction is still open, the
// hook rolls it back before the connection re-enters the idle set. This is
// the leak-prevention safety net for callers that forget explicit cleanup;
// rollback failures there are logged and swallowed so they cannot mask the
// error that caused the early release.
package tx
