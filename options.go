package dbcore

import (
	"log/slog"
	"time"

	"github.com/ordersync/dbcore/pkg/logger"
	"github.com/ordersync/dbcore/pkg/poolmgr"
	"github.com/ordersync/dbcore/pkg/retry"
)

const (
	defaultTxTimeout   = 30 * time.Second
	defaultMetadataTTL = 10 * time.Minute
)

type options struct {
	log              *slog.Logger
	policy           retry.Policy
	pool             poolmgr.Config
	factoryFn        poolmgr.FactoryFunc
	txTimeout        time.Duration
	metadataTTL      time.Duration
	taskConfirmation time.Duration
	taskRetention    time.Duration
}

// Option configures a Service.
type Option func(*options)

func newOptions(opts ...Option) *options {
	cfg := &options{
		log:         logger.NewNope(),
		policy:      retry.DefaultPolicy(),
		pool:        poolmgr.DefaultConfig(),
		txTimeout:   defaultTxTimeout,
		metadataTTL: defaultMetadataTTL,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger sets the structured logger used by every component.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithRetryPolicy replaces the default transient-failure retry policy
// applied to connection acquisition.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithPoolConfig replaces the pool, health, and renewal configuration.
func WithPoolConfig(cfg poolmgr.Config) Option {
	return func(o *options) {
		o.pool = cfg
	}
}

// WithTransactionTimeout bounds transaction begin round trips.
func WithTransactionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.txTimeout = d
		}
	}
}

// WithMetadataTTL sets how long cached column metadata stays valid.
func WithMetadataTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.metadataTTL = d
		}
	}
}

// WithTaskConfirmationWindow sets how long a cancelled task may take
// to confirm before it is marked cancelled automatically.
func WithTaskConfirmationWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.taskConfirmation = d
		}
	}
}

// WithTaskRetention sets how long finished tasks stay queryable.
func WithTaskRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.taskRetention = d
		}
	}
}

// WithFactoryFunc replaces how connection factories are built.
// Intended for tests.
func WithFactoryFunc(fn poolmgr.FactoryFunc) Option {
	return func(o *options) {
		o.factoryFn = fn
	}
}
