package webhooks

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"

	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/pkg/webhook"
)

// Service is the webhook subsystem instance: registry, trigger, queue,
// worker pool, scheduler, and management API behind one explicitly
// constructed object. Dependencies are passed at construction; there is no
// package-level state.
type Service struct {
	cfg      Config
	store    Store
	subCache *subscriptionCache
	queue    *deliveryQueue
	sender   *webhook.Sender
	breakers *webhook.Registry
	backoff  webhook.BackoffStrategy
	resolver hostResolver
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Manually retried delivery IDs whose next attempt skips the circuit
	// breaker gate. Entries are consumed by the worker on pickup.
	bypassMu sync.Mutex
	bypass   map[uuid.UUID]struct{}
}

func (s *Service) markBreakerBypass(id uuid.UUID) {
	s.bypassMu.Lock()
	s.bypass[id] = struct{}{}
	s.bypassMu.Unlock()
}

func (s *Service) takeBreakerBypass(id uuid.UUID) bool {
	s.bypassMu.Lock()
	defer s.bypassMu.Unlock()
	if _, ok := s.bypass[id]; !ok {
		return false
	}
	delete(s.bypass, id)
	return true
}

// Option configures the service at construction time.
type Option func(*Service)

// WithConfig overrides the default configuration. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg.withDefaults()
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHTTPClient sets a custom HTTP client for outbound deliveries.
// Useful for custom transports, proxies, or testing.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.sender = webhook.NewSenderWithClient(client)
	}
}

// WithBackoff overrides the retry backoff strategy.
func WithBackoff(strategy webhook.BackoffStrategy) Option {
	return func(s *Service) {
		if strategy != nil {
			s.backoff = strategy
		}
	}
}

// WithResolver overrides the DNS resolver used for target URL validation.
// Tests use this to exercise the disallowed-host rules without real DNS.
func WithResolver(resolver func(ctx context.Context, host string) ([]netip.Addr, error)) Option {
	return func(s *Service) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// New creates a webhook service on top of the given store and cache.
// Call Start to launch the delivery pipeline; the registry, trigger, and
// management API work without Start, but nothing is delivered until the
// workers run.
func New(store Store, cacheBackend Cache, opts ...Option) *Service {
	s := &Service{
		cfg:    DefaultConfig(),
		store:  store,
		queue:  newDeliveryQueue(),
		log:    slog.Default(),
		bypass: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sender == nil {
		s.sender = webhook.NewSender()
	}
	if s.backoff == nil {
		s.backoff = webhook.ExponentialBackoff{
			InitialInterval: s.cfg.RetryBaseDelay,
			MaxInterval:     s.cfg.RetryMaxDelay,
			Multiplier:      2,
		}
	}
	if s.resolver == nil {
		s.resolver = func(ctx context.Context, host string) ([]netip.Addr, error) {
			return defaultResolver(ctx, host)
		}
	}
	s.breakers = webhook.NewRegistry(s.cfg.BreakerFailureThreshold, s.cfg.BreakerRecoveryTimeout)
	s.subCache = &subscriptionCache{
		cache:    cacheBackend,
		store:    store,
		indexTTL: s.cfg.IndexCacheTTL,
		entryTTL: s.cfg.EntryCacheTTL,
	}
	return s
}

// Start launches the worker pool and the retry scheduler. The provided
// context scopes the pipeline; cancelling it is equivalent to calling Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := range s.cfg.Workers {
		s.wg.Add(1)
		go func(n int) {
			defer s.wg.Done()
			s.workerLoop(runCtx, n)
		}(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(runCtx)
	}()

	s.log.Info("webhook service started",
		slog.Int("workers", s.cfg.Workers),
		slog.Duration("sweep_interval", s.cfg.SweepInterval))
	return nil
}

// Stop shuts the pipeline down: the queue stops handing out work, in-flight
// deliveries finish or time out, and remaining queued or retrying
// deliveries stay durable in the store for the next start's sweep.
func (s *Service) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}

	s.queue.Close()
	cancel()

	s.log.Info("webhook service stopping, draining in-flight deliveries")
	s.wg.Wait()
	s.log.Info("webhook service stopped")
	return nil
}

// Run starts the service and returns a function suitable for errgroup.
func (s *Service) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return s.Stop()
	}
}

// QueueDepth reports how many deliveries are waiting for a worker.
func (s *Service) QueueDepth() int {
	return s.queue.Len()
}
