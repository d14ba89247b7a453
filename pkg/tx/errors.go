package tx

import "errors"

var (
	// ErrBeginFailed wraps a failed BEGIN TRANSACTION round trip.
	ErrBeginFailed = errors.New("tx: failed to begin transaction")

	// ErrCommitFailed wraps a failed commit. Always surfaced: the caller
	// must know its writes may not be durable.
	ErrCommitFailed = errors.New("tx: failed to commit transaction")

	// ErrRollbackFailed wraps a failed rollback.
	ErrRollbackFailed = errors.New("tx: failed to roll back transaction")

	// ErrTxFinished is returned when committing or rolling back a
	// transaction that already reached a terminal state.
	ErrTxFinished = errors.New("tx: transaction already finished")

	// ErrNilConn is returned when Begin is called without a connection.
	ErrNilConn = errors.New("tx: nil connection")
)
