package poolmgr

import "time"

// Config holds pool and renewal parameters for remote SQL Server
// access over VPN links. All fields are populated from environment
// variables for deployment convenience.
type Config struct {
	// Pool size per server. Remote named instances tolerate limited
	// concurrency; 10 connections covers replication batch traffic
	// without saturating the VPN link.
	MaxPoolSize int `env:"DBCORE_POOL_MAX_SIZE" envDefault:"10"`

	// Connections established ahead of traffic on pool creation.
	MinIdle int `env:"DBCORE_POOL_MIN_IDLE" envDefault:"0"`

	// How long an Acquire waits for a free connection before failing
	// with pool exhaustion.
	AcquireTimeout time.Duration `env:"DBCORE_ACQUIRE_TIMEOUT" envDefault:"30s"`

	// Connection recycling ceilings. Long-lived sockets behind
	// VPN/NAT gear get silently dropped; 30 minutes and 5000
	// statements bound exposure to half-open connections.
	MaxConnAge    time.Duration `env:"DBCORE_MAX_CONN_AGE" envDefault:"30m"`
	MaxOperations int64         `env:"DBCORE_MAX_CONN_OPERATIONS" envDefault:"5000"`

	// Background health probing. A pool is probed when its last check
	// is older than HealthInterval or its consecutive-error count
	// passes half of ErrorThreshold.
	HealthInterval     time.Duration `env:"DBCORE_HEALTH_INTERVAL" envDefault:"30s"`
	HealthProbeTimeout time.Duration `env:"DBCORE_HEALTH_PROBE_TIMEOUT" envDefault:"5s"`

	// Consecutive probe failures that trigger reactive pool renewal.
	ErrorThreshold int `env:"DBCORE_ERROR_THRESHOLD" envDefault:"5"`

	// Scheduled proactive renewal, cron expression or @every form.
	// 6 hours bounds exposure to silently-dropped long-lived sockets.
	RenewalSchedule string `env:"DBCORE_RENEWAL_SCHEDULE" envDefault:"@every 6h"`

	// Grace window before an old generation is drained, long enough
	// for in-flight borrowed connections to be released normally.
	DrainGrace time.Duration `env:"DBCORE_DRAIN_GRACE" envDefault:"60s"`

	// Upper bound on waiting for an old generation's borrowed
	// connections to come back during retirement.
	DrainTimeout time.Duration `env:"DBCORE_DRAIN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns the documented defaults. Used when the caller
// does not parse the environment.
func DefaultConfig() Config {
	return Config{
		MaxPoolSize:        10,
		MinIdle:            0,
		AcquireTimeout:     30 * time.Second,
		MaxConnAge:         30 * time.Minute,
		MaxOperations:      5000,
		HealthInterval:     30 * time.Second,
		HealthProbeTimeout: 5 * time.Second,
		ErrorThreshold:     5,
		RenewalSchedule:    "@every 6h",
		DrainGrace:         60 * time.Second,
		DrainTimeout:       30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = def.MaxPoolSize
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.MaxConnAge <= 0 {
		c.MaxConnAge = def.MaxConnAge
	}
	if c.MaxOperations <= 0 {
		c.MaxOperations = def.MaxOperations
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = def.HealthInterval
	}
	if c.HealthProbeTimeout <= 0 {
		c.HealthProbeTimeout = def.HealthProbeTimeout
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = def.ErrorThreshold
	}
	if c.RenewalSchedule == "" {
		c.RenewalSchedule = def.RenewalSchedule
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = def.DrainGrace
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
}
