// Package health exposes liveness and readiness endpoints for the
// monitoring tooling that watches the replication service.
//
// Liveness only says the process is up. Readiness runs the registered
// checks in parallel with a shared timeout; the connection facade
// contributes one check per configured server so an unreachable remote
// instance flips the service to unhealthy without taking it down.
//
//	mux.HandleFunc("/health", health.LivenessHandler())
//	mux.HandleFunc("/ready", health.ReadinessHandler(svc.Healthchecks()))
//
// Responses are plain text by default and JSON when the client asks
// for it (Accept header or ?format=json).
package health
