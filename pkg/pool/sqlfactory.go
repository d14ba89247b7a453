package pool

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ordersync/dbcore/pkg/profile"
)

// Connection eviction ceilings. Long-lived sockets behind VPN/NAT gear get
// silently dropped by intermediate state tables; bounding age and per-conn
// operation count keeps exposure to half-open connections short.
const (
	DefaultMaxConnAge     = 30 * time.Minute
	DefaultMaxOperations  = 5000
	DefaultDestroyTimeout = 5 * time.Second
)

// SQLFactory creates SQL Server connections for one server profile via
// go-mssqldb. Each created Conn owns a dedicated *sql.DB capped at one
// physical connection, so the pool layer fully controls connection
// lifecycle instead of fighting database/sql's internal pooling.
type SQLFactory struct {
	profile        *profile.ServerProfile
	maxConnAge     time.Duration
	maxOperations  int64
	destroyTimeout time.Duration
	logger         *slog.Logger
}

// FactoryOption configures a SQLFactory.
type FactoryOption func(*SQLFactory)

// WithMaxConnAge sets the age ceiling past which Validate evicts a
// connection. Defaults to DefaultMaxConnAge.
func WithMaxConnAge(d time.Duration) FactoryOption {
	return func(f *SQLFactory) {
		if d > 0 {
			f.maxConnAge = d
		}
	}
}

// WithMaxOperations sets the per-connection statement ceiling past which
// Validate evicts a connection. Defaults to DefaultMaxOperations.
func WithMaxOperations(n int64) FactoryOption {
	return func(f *SQLFactory) {
		if n > 0 {
			f.maxOperations = n
		}
	}
}

// WithDestroyTimeout bounds how long Destroy waits for a graceful close
// before abandoning the attempt. Defaults to DefaultDestroyTimeout.
func WithDestroyTimeout(d time.Duration) FactoryOption {
	return func(f *SQLFactory) {
		if d > 0 {
			f.destroyTimeout = d
		}
	}
}

// WithFactoryLogger sets the factory logger. Defaults to a discard logger.
func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *SQLFactory) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewSQLFactory creates a factory for the given profile.
func NewSQLFactory(p *profile.ServerProfile, opts ...FactoryOption) *SQLFactory {
	f := &SQLFactory{
		profile:        p,
		maxConnAge:     DefaultMaxConnAge,
		maxOperations:  DefaultMaxOperations,
		destroyTimeout: DefaultDestroyTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create opens one connection and verifies it with a ping inside the
// profile's connect timeout. The timeout covers named-instance resolution,
// which is the slow part on VPN links.
func (f *SQLFactory) Create(ctx context.Context) (*Conn, error) {
	if err := f.profile.Validate(); err != nil {
		return nil, &ConnError{ServerKey: f.profile.Key, Phase: PhaseError, Err: err}
	}

	db, err := sql.Open("sqlserver", f.profile.DSN())
	if err != nil {
		return nil, &ConnError{ServerKey: f.profile.Key, Phase: PhaseError, Err: err}
	}

	// Pin the handle to a single physical connection that never expires on
	// its own; eviction decisions belong to Validate, not database/sql.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, f.profile.Timeout())
	defer cancel()

	start := time.Now()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, f.classify(err)
	}

	conn := NewConn(f.profile.Key, db)
	f.logger.DebugContext(ctx, "connection established",
		slog.String("server_key", f.profile.Key),
		slog.String("addr", f.profile.Addr()),
		slog.String("conn_id", conn.ID()),
		slog.Duration("took", time.Since(start)),
	)
	return conn, nil
}

// Validate reports whether the connection may be handed to a caller.
// Rejects connections flagged unhealthy, already destroyed, past the age
// ceiling, or past the operation ceiling.
func (f *SQLFactory) Validate(conn *Conn) bool {
	switch {
	case conn == nil || conn.db == nil:
		return false
	case conn.closed.Load():
		return false
	case !conn.Healthy():
		return false
	case time.Since(conn.CreatedAt()) > f.maxConnAge:
		return false
	case conn.OperationCount() >= f.maxOperations:
		return false
	}
	return true
}

// Destroy closes the connection. Idempotent; a close that hangs past the
// destroy timeout is abandoned (the goroutine finishes in the background)
// and never propagates a panic.
func (f *SQLFactory) Destroy(ctx context.Context, conn *Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.ErrorContext(ctx, "panic during connection destroy",
				slog.String("server_key", f.profile.Key),
				slog.Any("panic", r),
			)
			err = ErrNilConn
		}
	}()

	if conn == nil || conn.db == nil {
		return nil
	}
	if !conn.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			f.logger.WarnContext(ctx, "connection close failed",
				slog.String("server_key", f.profile.Key),
				slog.String("conn_id", conn.ID()),
				slog.String("error", err.Error()),
			)
		}
		return err
	case <-time.After(f.destroyTimeout):
		f.logger.WarnContext(ctx, "connection close timed out, abandoning",
			slog.String("server_key", f.profile.Key),
			slog.String("conn_id", conn.ID()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps a driver error to a ConnError with phase and server code.
func (f *SQLFactory) classify(err error) *ConnError {
	ce := &ConnError{ServerKey: f.profile.Key, Phase: PhaseError, Err: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ce.Phase = PhaseTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		ce.Phase = PhaseTimeout
	}

	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		ce.Code = sqlErr.Number
	}
	return ce
}
