package dbcore

import (
	"context"

	"github.com/ordersync/dbcore/pkg/pool"
	"github.com/ordersync/dbcore/pkg/retry"
)

// GetConnection borrows a connection for serverKey, creating the pool
// on first use. Transient connect failures are retried with backoff
// per the configured policy; pool exhaustion already includes one
// renewal attempt and is surfaced without further retries. The caller
// owns the connection exclusively until ReleaseConnection.
func (s *Service) GetConnection(ctx context.Context, serverKey string) (*Conn, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	return retry.DoValue(ctx, s.policy, func(ctx context.Context, attempt int) (*pool.Conn, error) {
		return s.mgr.Acquire(ctx, serverKey)
	})
}

// ReleaseConnection returns a connection to the generation that issued
// it. A still-open transaction is rolled back first; an invalid
// connection is destroyed and lazily replaced. Safe to call with nil.
func (s *Service) ReleaseConnection(conn *Conn) {
	if conn == nil {
		return
	}
	s.mgr.Release(conn)
}
