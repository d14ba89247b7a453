package poolmgr_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/dbcore/pkg/pool"
	"github.com/ordersync/dbcore/pkg/poolmgr"
	"github.com/ordersync/dbcore/pkg/profile"
)

// fakeFactory hands out pool connections backed by a shared mock
// database so no test dials a real server.
type fakeFactory struct {
	serverKey string
	db        *sql.DB

	mu        sync.Mutex
	created   int
	destroyed int
	createErr error
}

func (f *fakeFactory) Create(_ context.Context) (*pool.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return pool.NewConn(f.serverKey, f.db), nil
}

func (f *fakeFactory) Validate(conn *pool.Conn) bool {
	return conn != nil && conn.Healthy()
}

func (f *fakeFactory) Destroy(_ context.Context, _ *pool.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return nil
}

func (f *fakeFactory) counts() (created, destroyed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.destroyed
}

func testProfiles(keys ...string) profile.StaticProvider {
	sp := make(profile.StaticProvider, len(keys))
	for _, key := range keys {
		sp[key] = &profile.ServerProfile{
			Key:      key,
			Host:     "db." + key + ".example.internal",
			Instance: "SQLEXPRESS",
			Database: "orders",
			User:     "replicator",
			Password: "secret",
		}
	}
	return sp
}

func testConfig() poolmgr.Config {
	cfg := poolmgr.DefaultConfig()
	cfg.MaxPoolSize = 2
	cfg.AcquireTimeout = 200 * time.Millisecond
	cfg.DrainGrace = 10 * time.Millisecond
	cfg.DrainTimeout = time.Second
	cfg.HealthInterval = time.Hour // keep background probing out of tests
	return cfg
}

func newManager(t *testing.T, provider profile.Provider, cfg poolmgr.Config) (*poolmgr.Manager, *fakeFactory) {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	factory := &fakeFactory{db: db}
	m := poolmgr.New(provider,
		poolmgr.WithConfig(cfg),
		poolmgr.WithFactoryFunc(func(p *profile.ServerProfile) pool.Factory {
			factory.mu.Lock()
			factory.serverKey = p.Key
			factory.mu.Unlock()
			return factory
		}),
	)
	return m, factory
}

func TestManager_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("acquire before initialize", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("a"), testConfig())
		_, err := m.Acquire(context.Background(), "a")
		require.ErrorIs(t, err, poolmgr.ErrNotInitialized)
	})

	t.Run("double initialize", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("a"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		require.ErrorIs(t, m.Initialize(context.Background()), poolmgr.ErrAlreadyInitialized)
	})

	t.Run("invalid renewal schedule", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.RenewalSchedule = "not a schedule"
		m, _ := newManager(t, testProfiles("a"), cfg)

		require.ErrorIs(t, m.Initialize(context.Background()), poolmgr.ErrInvalidSchedule)
	})

	t.Run("use after shutdown", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("a"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		require.NoError(t, m.Shutdown(context.Background()))

		_, err := m.Acquire(context.Background(), "a")
		require.ErrorIs(t, err, poolmgr.ErrNotInitialized)
		require.ErrorIs(t, m.Shutdown(context.Background()), poolmgr.ErrNotInitialized)
	})
}

func TestManager_Acquire(t *testing.T) {
	t.Parallel()

	t.Run("creates pool on first use and reuses it", func(t *testing.T) {
		t.Parallel()

		m, factory := newManager(t, testProfiles("madrid"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		conn, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)
		require.Equal(t, "madrid", conn.ServerKey())
		m.Release(conn)

		conn2, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)
		require.Equal(t, conn.ID(), conn2.ID(), "idle connection should be reused")
		m.Release(conn2)

		created, _ := factory.counts()
		require.Equal(t, 1, created)
	})

	t.Run("unknown server key", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("madrid"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		_, err := m.Acquire(context.Background(), "ghost")
		require.ErrorIs(t, err, profile.ErrProfileNotFound)
	})

	t.Run("exhaustion triggers one renewal then succeeds", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.MaxPoolSize = 1
		m, _ := newManager(t, testProfiles("madrid"), cfg)
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		held, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)

		// The only slot is borrowed; the second acquire exhausts the
		// pool, renews, and lands on the fresh generation.
		conn, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)
		require.NotEqual(t, held.Generation(), conn.Generation())

		m.Release(conn)
		m.Release(held)
	})
}

func TestManager_Renew(t *testing.T) {
	t.Parallel()

	t.Run("swap keeps old generation releasable", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("madrid"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		oldConn, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)
		oldGen := oldConn.Generation()

		require.NoError(t, m.Renew(context.Background(), "madrid", "test"))

		newConn, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)
		require.NotEqual(t, oldGen, newConn.Generation(),
			"post-swap acquisitions resolve against the new generation")

		// Releasing the old-generation connection must not fail and
		// routes to the retiring pool.
		m.Release(oldConn)
		m.Release(newConn)

		require.Eventually(t, func() bool {
			return m.Stats()["madrid"].RetiringGenerations == 0
		}, 2*time.Second, 10*time.Millisecond, "old generation should retire after the grace window")
	})

	t.Run("unknown server key", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("madrid"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		require.ErrorIs(t, m.Renew(context.Background(), "ghost", "test"), poolmgr.ErrUnknownServer)
	})

	t.Run("stats count renewals", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles("madrid"), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		conn, err := m.Acquire(context.Background(), "madrid")
		require.NoError(t, err)
		m.Release(conn)

		require.NoError(t, m.Renew(context.Background(), "madrid", "test"))
		require.Equal(t, int64(1), m.Stats()["madrid"].Renewals)
	})
}

func TestManager_CheckHealth(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	factory := &fakeFactory{serverKey: "madrid", db: db}
	m := poolmgr.New(testProfiles("madrid"),
		poolmgr.WithConfig(testConfig()),
		poolmgr.WithFactoryFunc(func(*profile.ServerProfile) pool.Factory { return factory }),
	)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Shutdown(context.Background())

	conn, err := m.Acquire(context.Background(), "madrid")
	require.NoError(t, err)
	m.Release(conn)

	health, err := m.CheckHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"madrid": true}, health)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Diagnose(t *testing.T) {
	t.Parallel()

	t.Run("missing profile", func(t *testing.T) {
		t.Parallel()

		m, _ := newManager(t, testProfiles(), testConfig())
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		d := m.Diagnose(context.Background(), "ghost")
		require.False(t, d.Success)
		require.Contains(t, d.Error, "load profile")
	})

	t.Run("classified connect failure", func(t *testing.T) {
		t.Parallel()

		m, factory := newManager(t, testProfiles("madrid"), testConfig())
		factory.mu.Lock()
		factory.serverKey = "madrid"
		factory.createErr = &pool.ConnError{
			ServerKey: "madrid",
			Phase:     pool.PhaseTimeout,
			Err:       context.DeadlineExceeded,
		}
		factory.mu.Unlock()
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		d := m.Diagnose(context.Background(), "madrid")
		require.False(t, d.Success)
		require.Equal(t, pool.PhaseTimeout, d.Phase)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

		factory := &fakeFactory{serverKey: "madrid", db: db}
		m := poolmgr.New(testProfiles("madrid"),
			poolmgr.WithConfig(testConfig()),
			poolmgr.WithFactoryFunc(func(*profile.ServerProfile) pool.Factory { return factory }),
		)
		require.NoError(t, m.Initialize(context.Background()))
		defer m.Shutdown(context.Background())

		d := m.Diagnose(context.Background(), "madrid")
		require.True(t, d.Success)
		require.NotEmpty(t, d.Data["connect_duration"])
	})
}
