package poolmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ordersync/dbcore/pkg/pool"
)

const probeStatement = "SELECT 1"

// healthLoop probes pools out-of-band. A pool is due when its last
// check is older than the health interval or its consecutive-error
// count exceeds half the error threshold. Probes never hold a
// connection longer than the probe timeout and never block Acquire.
func (m *Manager) healthLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probeDue()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) probeDue() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		e.mu.Lock()
		due := now.Sub(e.lastCheck) >= m.cfg.HealthInterval ||
			e.errCount > m.cfg.ErrorThreshold/2
		e.mu.Unlock()
		if due {
			m.probeEntry(e)
		}
	}
}

// probeEntry runs one synthetic acquire/statement/release cycle and
// updates the entry's error bookkeeping. Crossing the error threshold
// escalates to reactive renewal.
func (m *Manager) probeEntry(e *entry) {
	err := m.probe(e.currentPool())

	e.mu.Lock()
	e.lastCheck = time.Now()
	if err == nil {
		e.errCount = 0
		e.mu.Unlock()
		return
	}
	e.errCount++
	count := e.errCount
	e.mu.Unlock()

	m.log.Warn("pool health probe failed",
		slog.String("server_key", e.serverKey),
		slog.Int("consecutive_errors", count),
		slog.String("error", err.Error()))

	if count >= m.cfg.ErrorThreshold {
		if rerr := m.Renew(context.Background(), e.serverKey, "consecutive health check failures"); rerr != nil {
			m.log.Warn("reactive renewal failed",
				slog.String("server_key", e.serverKey), slog.String("error", rerr.Error()))
		}
	}
}

func (m *Manager) probe(p *pool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HealthProbeTimeout)
	defer cancel()

	conn, err := p.Acquire(ctx)
	if err != nil {
		// A draining pool is mid-renewal, not unhealthy; skip rather
		// than count an error against the generation replacing it.
		if errors.Is(err, pool.ErrPoolDraining) || errors.Is(err, pool.ErrPoolClosed) {
			return nil
		}
		return err
	}

	_, err = conn.DB().ExecContext(ctx, probeStatement)
	if err != nil {
		conn.MarkUnhealthy()
	} else {
		conn.RecordOperation()
	}
	p.Release(conn)
	return err
}

// CheckHealth probes every known pool in parallel and reports
// per-server health. It does not mutate error counters; it is the
// on-demand diagnostic twin of the background loop.
func (m *Manager) CheckHealth(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil, ErrNotInitialized
	}
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	var mu sync.Mutex
	health := make(map[string]bool, len(entries))

	g, _ := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			err := m.probe(e.currentPool())
			mu.Lock()
			health[e.serverKey] = err == nil
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return health, nil
}

// Diagnosis is the outcome of a direct connection attempt, with the
// failure phase and server error code when available.
type Diagnosis struct {
	ServerKey string         `json:"server_key"`
	Success   bool           `json:"success"`
	Phase     pool.Phase     `json:"phase,omitempty"`
	Code      int32          `json:"code,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Diagnose bypasses the pool and performs a one-shot factory
// create/probe/destroy cycle against serverKey, reporting timings and
// classified failure detail for operators.
func (m *Manager) Diagnose(ctx context.Context, serverKey string) Diagnosis {
	d := Diagnosis{ServerKey: serverKey}

	prof, err := m.provider.ServerProfile(ctx, serverKey)
	if err != nil {
		d.Error = fmt.Sprintf("load profile: %v", err)
		return d
	}
	if err := prof.Validate(); err != nil {
		d.Error = fmt.Sprintf("invalid profile: %v", err)
		return d
	}
	d.Data = map[string]any{
		"address":  prof.Addr(),
		"database": prof.Database,
	}

	factory := m.factoryFn(prof)
	start := time.Now()
	conn, err := factory.Create(ctx)
	d.Data["connect_duration"] = time.Since(start).String()
	if err != nil {
		d.Error = err.Error()
		var cerr *pool.ConnError
		if errors.As(err, &cerr) {
			d.Phase = cerr.Phase
			d.Code = cerr.Code
		}
		return d
	}
	defer factory.Destroy(ctx, conn) //nolint:errcheck

	start = time.Now()
	if _, err := conn.DB().ExecContext(ctx, probeStatement); err != nil {
		d.Error = fmt.Sprintf("probe statement: %v", err)
		return d
	}
	d.Data["probe_duration"] = time.Since(start).String()
	d.Success = true
	return d
}
