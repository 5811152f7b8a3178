package webhooks

import "time"

// Config holds the tunables of the delivery pipeline. Zero values are
// replaced with the env defaults below at service construction.
type Config struct {
	// Workers is the fixed size of the delivery worker pool.
	Workers int `env:"WEBHOOK_WORKERS" envDefault:"5"`

	// RetryBaseDelay is the backoff base: the delay before retry k is
	// RetryBaseDelay * 2^(k-1), capped at RetryMaxDelay.
	RetryBaseDelay time.Duration `env:"WEBHOOK_RETRY_BASE_DELAY" envDefault:"60s"`
	RetryMaxDelay  time.Duration `env:"WEBHOOK_RETRY_MAX_DELAY" envDefault:"24h"`

	// DefaultMaxRetries and DefaultTimeout apply to subscriptions created
	// without explicit values.
	DefaultMaxRetries int           `env:"WEBHOOK_DEFAULT_MAX_RETRIES" envDefault:"3"`
	DefaultTimeout    time.Duration `env:"WEBHOOK_DEFAULT_TIMEOUT" envDefault:"10s"`

	// DisableThreshold is the number of consecutive failed deliveries after
	// which a subscription is automatically disabled.
	DisableThreshold int `env:"WEBHOOK_DISABLE_THRESHOLD" envDefault:"10"`

	// Circuit breaker: open after BreakerFailureThreshold consecutive
	// failures, probe after BreakerRecoveryTimeout.
	BreakerFailureThreshold int           `env:"WEBHOOK_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerRecoveryTimeout  time.Duration `env:"WEBHOOK_BREAKER_RECOVERY_TIMEOUT" envDefault:"30s"`

	// SweepInterval is how often the scheduler re-enqueues due retrying
	// deliveries and pending deliveries older than PendingGrace.
	SweepInterval time.Duration `env:"WEBHOOK_SWEEP_INTERVAL" envDefault:"5s"`
	PendingGrace  time.Duration `env:"WEBHOOK_PENDING_GRACE" envDefault:"30s"`
	SweepBatch    int           `env:"WEBHOOK_SWEEP_BATCH" envDefault:"100"`

	// Subscription cache TTLs. The event-type index uses the shorter TTL so
	// staleness self-heals within minutes even if an invalidation is missed.
	IndexCacheTTL time.Duration `env:"WEBHOOK_INDEX_CACHE_TTL" envDefault:"2m"`
	EntryCacheTTL time.Duration `env:"WEBHOOK_ENTRY_CACHE_TTL" envDefault:"10m"`

	// AllowPrivateURLs disables the loopback/private-range target check.
	// Local development only.
	AllowPrivateURLs bool `env:"WEBHOOK_ALLOW_PRIVATE_URLS" envDefault:"false"`

	// ShutdownTimeout bounds how long Stop waits for in-flight deliveries.
	ShutdownTimeout time.Duration `env:"WEBHOOK_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns the production defaults documented on the env tags.
func DefaultConfig() Config {
	return Config{
		Workers:                 5,
		RetryBaseDelay:          60 * time.Second,
		RetryMaxDelay:           24 * time.Hour,
		DefaultMaxRetries:       3,
		DefaultTimeout:          10 * time.Second,
		DisableThreshold:        10,
		BreakerFailureThreshold: 5,
		BreakerRecoveryTimeout:  30 * time.Second,
		SweepInterval:           5 * time.Second,
		PendingGrace:            30 * time.Second,
		SweepBatch:              100,
		IndexCacheTTL:           2 * time.Minute,
		EntryCacheTTL:           10 * time.Minute,
		ShutdownTimeout:         30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = def.DefaultMaxRetries
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = def.DefaultTimeout
	}
	if c.DisableThreshold <= 0 {
		c.DisableThreshold = def.DisableThreshold
	}
	if c.BreakerFailureThreshold <= 0 {
		c.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if c.BreakerRecoveryTimeout <= 0 {
		c.BreakerRecoveryTimeout = def.BreakerRecoveryTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = def.PendingGrace
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = def.SweepBatch
	}
	if c.IndexCacheTTL <= 0 {
		c.IndexCacheTTL = def.IndexCacheTTL
	}
	if c.EntryCacheTTL <= 0 {
		c.EntryCacheTTL = def.EntryCacheTTL
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}
