package dbcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ordersync/dbcore/pkg/tx"
)

// WithTransaction borrows a connection, runs fn inside a transaction,
// and commits when fn returns nil. A non-nil error from fn rolls the
// transaction back and is returned unchanged; the rollback's own
// failure is logged, not surfaced, so the original cause stays
// visible. The connection is always released.
func (s *Service) WithTransaction(ctx context.Context, serverKey string, fn func(ctx context.Context, txn *Txn) error) error {
	if err := s.ready(); err != nil {
		return err
	}

	conn, err := s.GetConnection(ctx, serverKey)
	if err != nil {
		return err
	}
	defer s.ReleaseConnection(conn)

	txn, err := s.txc.Begin(ctx, conn, s.txTimeout)
	if err != nil {
		return err
	}

	if err := fn(ctx, txn); err != nil {
		// fn may have finished the transaction itself; that is not
		// worth a warning.
		if rbErr := s.txc.Rollback(ctx, txn); rbErr != nil && !errors.Is(rbErr, tx.ErrTxFinished) {
			s.log.WarnContext(ctx, "rollback after failed transaction function",
				slog.String("server_key", serverKey),
				slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := s.txc.Commit(ctx, txn); err != nil {
		return fmt.Errorf("dbcore: commit on %q: %w", serverKey, err)
	}
	return nil
}

// BeginTransaction opens (or returns the already-open) transaction on
// a borrowed connection. Prefer WithTransaction; this exists for
// callers whose commit point is in another layer.
func (s *Service) BeginTransaction(ctx context.Context, conn *Conn) (*Txn, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.txc.Begin(ctx, conn, s.txTimeout)
}

// CommitTransaction commits txn. On failure the transaction is gone
// server-side; the connection is marked unhealthy and the error
// surfaces.
func (s *Service) CommitTransaction(ctx context.Context, txn *Txn) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.txc.Commit(ctx, txn)
}

// RollbackTransaction rolls txn back. An already-finished transaction
// reports tx.ErrTxFinished.
func (s *Service) RollbackTransaction(ctx context.Context, txn *Txn) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.txc.Rollback(ctx, txn)
}
