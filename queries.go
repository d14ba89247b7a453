package dbcore

import (
	"context"

	"github.com/ordersync/dbcore/pkg/query"
)

// Query borrows a connection for serverKey, runs one row-returning
// statement, and releases the connection. For several statements on
// one connection use GetConnection with QueryConn, or WithTransaction.
func (s *Service) Query(ctx context.Context, serverKey, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	conn, err := s.GetConnection(ctx, serverKey)
	if err != nil {
		return nil, err
	}
	defer s.ReleaseConnection(conn)

	return s.QueryConn(ctx, conn, stmt, params, hints)
}

// Exec is Query for statements without result sets.
func (s *Service) Exec(ctx context.Context, serverKey, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	conn, err := s.GetConnection(ctx, serverKey)
	if err != nil {
		return nil, err
	}
	defer s.ReleaseConnection(conn)

	return s.ExecConn(ctx, conn, stmt, params, hints)
}

// QueryConn runs a statement on an already-borrowed connection. The
// connection's operation count advances, and a failure classified as
// connection-level marks it unhealthy so release evicts it.
func (s *Service) QueryConn(ctx context.Context, conn *Conn, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, query.ErrNilQuerier
	}

	rs, err := s.exec.Query(ctx, conn.DB(), stmt, params, hints)
	s.noteStatement(conn, err)
	return rs, err
}

// ExecConn is QueryConn for statements without result sets.
func (s *Service) ExecConn(ctx context.Context, conn *Conn, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, query.ErrNilQuerier
	}

	rs, err := s.exec.Exec(ctx, conn.DB(), stmt, params, hints)
	s.noteStatement(conn, err)
	return rs, err
}

// QueryTx runs a statement inside an open transaction.
func (s *Service) QueryTx(ctx context.Context, txn *Txn, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, query.ErrNilQuerier
	}

	rs, err := s.exec.Query(ctx, txn.Tx(), stmt, params, hints)
	s.noteStatement(txn.Conn(), err)
	return rs, err
}

// ExecTx is QueryTx for statements without result sets.
func (s *Service) ExecTx(ctx context.Context, txn *Txn, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, query.ErrNilQuerier
	}

	rs, err := s.exec.Exec(ctx, txn.Tx(), stmt, params, hints)
	s.noteStatement(txn.Conn(), err)
	return rs, err
}

// TableHints fetches (and caches) column metadata for table over conn
// and builds type hints for the given parameters. Statement layers use
// it so values are wire-typed from the actual schema instead of
// guessed.
func (s *Service) TableHints(ctx context.Context, conn *Conn, table string, params Params) (Hints, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, query.ErrNilQuerier
	}

	types, err := s.exec.TableTypes(ctx, conn.DB(), table)
	s.noteStatement(conn, err)
	if err != nil {
		return nil, err
	}
	return query.HintsFor(types, params), nil
}

// noteStatement records one statement against the connection and marks
// it unhealthy on connection-level failures. Query-level failures
// (bad parameter, missing object) leave the connection reusable.
func (s *Service) noteStatement(conn *Conn, err error) {
	if conn == nil {
		return
	}
	conn.RecordOperation()
	if err != nil && IsTransient(err) {
		conn.MarkUnhealthy()
	}
}
