// Package dbcore is the connection infrastructure for replicating
// order and transfer records to remote SQL Server instances.
//
// It wires the per-server connection pools, generation renewal, health
// probing, transaction binding, retry classification, statement
// execution, and cooperative task cancellation into one service with
// an explicit lifecycle:
//
//	svc := dbcore.New(provider, dbcore.WithLogger(log))
//	if err := svc.Initialize(ctx); err != nil {
//		return err
//	}
//	defer svc.Shutdown(context.Background())
//
//	rs, err := svc.Query(ctx, "madrid",
//		"SELECT id, status FROM orders WHERE site = @site",
//		dbcore.Params{"site": "MAD-01"}, nil)
//
// The remote servers sit behind VPN links and resolve named instances
// at connect time, so every path through this package assumes slow
// handshakes, bursty transient failures, and silently dropped
// long-lived sockets. Transient failures are retried with capped
// backoff; authentication and schema errors fail fast.
//
// Subpackages carry the individual concerns (pkg/pool, pkg/poolmgr,
// pkg/tx, pkg/retry, pkg/task, pkg/query, pkg/profile); this package
// composes them and re-exports the types callers need day to day.
package dbcore
