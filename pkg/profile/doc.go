// Package profile defines server connection profiles and the provider
// boundary through which they are loaded.
//
// A ServerProfile describes one remote SQL Server target: host, optional
// fixed port or named instance, database, credentials, and protocol options.
// Profiles are immutable value objects; the connection layer reloads them
// from the Provider whenever a pool is (re)initialized, so credential and
// host changes take effect on the next pool generation without a restart.
//
// # Named Instances
//
// A profile may address a named instance instead of a fixed port. In that
// case the driver resolves the instance's dynamic port through the SQL
// Browser service at connect time, which can add seconds of latency over
// slow VPN links. Connect timeouts in the calling layer must account for
// this; DSN() propagates the profile's connect timeout to the driver's
// dial timeout for exactly that reason.
//
// # Provider
//
// The Provider interface is the boundary to the configuration store that
// owns server credentials. This package does not implement it; the
// embedding application supplies one. A missing profile is reported as
// ErrProfileNotFound and is never retried by the connection layer.
package profile
