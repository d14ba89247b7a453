package dbcore

import (
	"context"
	"fmt"

	"github.com/ordersync/dbcore/pkg/health"
	"github.com/ordersync/dbcore/pkg/poolmgr"
)

// GetConnectionStats reports per-server pool statistics: size,
// available, borrowed, pending waiters, error counters, and renewal
// bookkeeping of the live generation.
func (s *Service) GetConnectionStats() map[string]poolmgr.PoolStats {
	if err := s.ready(); err != nil {
		return nil
	}
	return s.mgr.Stats()
}

// DiagnoseConnection bypasses the pool and attempts one direct
// connection to serverKey, reporting the failure phase, server error
// code, and timings for operators.
func (s *Service) DiagnoseConnection(ctx context.Context, serverKey string) poolmgr.Diagnosis {
	if err := s.ready(); err != nil {
		return poolmgr.Diagnosis{ServerKey: serverKey, Error: err.Error()}
	}
	return s.mgr.Diagnose(ctx, serverKey)
}

// CheckPoolsHealth probes every known pool in parallel and reports
// per-server health booleans.
func (s *Service) CheckPoolsHealth(ctx context.Context) (map[string]bool, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.mgr.CheckHealth(ctx)
}

// Healthchecks builds one readiness check per currently-known server,
// suitable for health.ReadinessHandler. Each check borrows a
// connection and runs a trivial statement, so an unreachable remote
// flips readiness without touching the other servers.
func (s *Service) Healthchecks() health.Checks {
	checks := make(health.Checks)
	for serverKey := range s.GetConnectionStats() {
		checks[serverKey] = func(ctx context.Context) error {
			conn, err := s.GetConnection(ctx, serverKey)
			if err != nil {
				return fmt.Errorf("acquire: %w", err)
			}
			defer s.ReleaseConnection(conn)

			if _, err := s.ExecConn(ctx, conn, "SELECT 1", nil, nil); err != nil {
				return fmt.Errorf("probe: %w", err)
			}
			return nil
		}
	}
	return checks
}
