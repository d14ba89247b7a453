// Package pool provides a bounded, per-server connection pool over SQL
// Server connections, with strict FIFO acquisition, validate-on-release
// eviction, and a drainable lifecycle for wholesale pool replacement.
//
// # Design
//
// One Pool serves one server key. Connections are created by a Factory
// (SQLFactory for real servers; tests inject fakes) and wrapped in a Conn
// carrying pool metadata: generation, creation time, operation count, and
// a health flag. A Conn is owned exclusively by the pool while idle and
// exclusively by the caller between Acquire and Release; it is never
// shared, because the underlying TDS protocol does not multiplex
// statements on one connection.
//
// Acquisition is FIFO: waiters are queued and served in arrival order,
// trading a little cache locality for bounded worst-case wait variance
// under load. Release validates the connection; an invalid one is
// destroyed and its slot becomes available, but the replacement is only
// created lazily by the next Acquire, so a burst of evictions cannot turn
// into a reconnect storm.
//
// # Lifecycle
//
// A pool moves Active → Draining → Closed and never back. While draining,
// Acquire fails fast with ErrPoolDraining so callers can reroute to the
// replacement generation, while connections already borrowed can still be
// released normally. Drain waits for borrowed connections to come home;
// Clear force-destroys whatever sits idle.
//
// # Usage
//
//	p := pool.New("warehouse-01", factory, pool.Config{MaxSize: 5})
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(conn)
//
//	// conn.DB() is a *sql.DB pinned to a single physical connection.
package pool
