package poolmgr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ordersync/dbcore/pkg/pool"
)

// Renew replaces serverKey's pool with a fresh generation. New
// acquisitions resolve against the new pool immediately; the old one
// keeps serving releases and is drained, cleared and closed in the
// background after the grace window. Callers holding old-generation
// connections are never stalled or rejected.
func (m *Manager) Renew(ctx context.Context, serverKey, reason string) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	e, ok := m.entries[serverKey]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownServer, serverKey)
	}

	// Profiles may have changed since the pool was built; reload so a
	// credential or address fix takes effect with the new generation.
	factory := e.factory
	if prof, err := m.provider.ServerProfile(ctx, serverKey); err != nil {
		m.log.WarnContext(ctx, "profile reload failed, renewing with previous profile",
			slog.String("server_key", serverKey), slog.String("error", err.Error()))
	} else if err := prof.Validate(); err != nil {
		m.log.WarnContext(ctx, "reloaded profile invalid, renewing with previous profile",
			slog.String("server_key", serverKey), slog.String("error", err.Error()))
	} else {
		factory = m.factoryFn(prof)
	}

	newPool := m.buildPool(serverKey, factory)

	e.mu.Lock()
	oldPool := e.current
	e.current = newPool
	e.factory = factory
	e.errCount = 0
	if oldPool != nil {
		e.retiring[oldPool.Generation()] = oldPool
	}
	e.mu.Unlock()
	e.renewals.Add(1)

	m.log.InfoContext(ctx, "pool generation renewed",
		slog.String("server_key", serverKey),
		slog.String("reason", reason),
		slog.String("new_generation", newPool.Generation()))

	if oldPool != nil {
		m.mu.Lock()
		if m.initialized {
			m.wg.Add(1)
			go m.retire(e, oldPool)
		}
		// Otherwise shutdown is underway; it closes the retiring
		// generation along with everything else.
		m.mu.Unlock()
	}
	return nil
}

// retire drains and destroys an old generation after the grace window.
// Failures are logged and counted, never propagated; the pools are
// force-cleared regardless so no sockets leak.
func (m *Manager) retire(e *entry, old *pool.Pool) {
	defer m.wg.Done()

	select {
	case <-time.After(m.cfg.DrainGrace):
	case <-m.stop:
		// Shutdown closes every pool itself.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DrainTimeout)
	defer cancel()

	if err := old.Drain(ctx); err != nil {
		m.log.Warn("old generation drain incomplete, forcing clear",
			slog.String("server_key", e.serverKey),
			slog.String("generation", old.Generation()),
			slog.String("error", err.Error()))
	}
	old.Clear()
	if err := old.Close(ctx); err != nil {
		m.log.Warn("old generation close failed",
			slog.String("server_key", e.serverKey),
			slog.String("generation", old.Generation()),
			slog.String("error", err.Error()))
	}

	e.mu.Lock()
	delete(e.retiring, old.Generation())
	e.mu.Unlock()

	m.log.Info("old generation retired",
		slog.String("server_key", e.serverKey),
		slog.String("generation", old.Generation()))
}

// renewalLoop proactively renews every pool on the configured
// schedule to bound exposure to silently-dropped long-lived sockets.
func (m *Manager) renewalLoop() {
	defer m.wg.Done()

	for {
		next := m.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			m.renewAll("scheduled renewal")
		case <-m.stop:
			timer.Stop()
			return
		}
	}
}

func (m *Manager) renewAll(reason string) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		if err := m.Renew(context.Background(), key, reason); err != nil {
			m.log.Warn("scheduled renewal failed",
				slog.String("server_key", key), slog.String("error", err.Error()))
		}
	}
}
