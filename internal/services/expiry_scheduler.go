package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"campus-takeout/internal/domain"
	"campus-takeout/internal/infra/cache"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sweepLockKey = "lock:order-expiry-sweep"

// Expirer finds and cancels orders whose payment window has passed.
type Expirer interface {
	ExpiredUnpaid(ctx context.Context, now time.Time, afterID uint64, limit int) ([]domain.Order, error)
	ExpireOrder(ctx context.Context, order *domain.Order, now time.Time) (bool, error)
}

var _ Expirer = (*OrderService)(nil)

type SweepResult struct {
	Scanned   int
	Cancelled int
	// Skipped counts orders paid or cancelled between the scan and the update.
	Skipped int
	Failed  int
	// Locked is set when another instance held the sweep lock.
	Locked bool
}

type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// ExpiryScheduler periodically cancels pending orders left unpaid past
// their deadline. Sweeps are idempotent and safe to run from several
// instances.
type ExpiryScheduler struct {
	orders Expirer
	locker cache.Locker
	cfg    SchedulerConfig
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewExpiryScheduler builds a scheduler. locker may be nil.
func NewExpiryScheduler(orders Expirer, locker cache.Locker, cfg SchedulerConfig, log *zap.Logger) *ExpiryScheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &ExpiryScheduler{
		orders: orders,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps once immediately and then on every tick until Stop is
// called or ctx is done. Cancelling ctx stops new ticks but does not abort
// a sweep already in progress. Calling Start on a running scheduler does
// nothing.
func (s *ExpiryScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
}

// Stop stops ticking and waits for an in-flight sweep to finish.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *ExpiryScheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.log.Info("order expiry scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	sweepCtx := context.WithoutCancel(ctx)
	s.tick(sweepCtx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("order expiry scheduler stopped", zap.Error(ctx.Err()))
			return
		case <-stop:
			s.log.Info("order expiry scheduler stopped")
			return
		case <-ticker.C:
			s.tick(sweepCtx)
		}
	}
}

func (s *ExpiryScheduler) tick(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("order expiry sweep failed", zap.Error(err))
		return
	}
	if res.Scanned > 0 || res.Failed > 0 {
		s.log.Info("order expiry sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("cancelled", res.Cancelled),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
}

// RunOnce performs a single sweep. Only a failed scan is returned as an
// error; per-order failures are logged and counted.
func (s *ExpiryScheduler) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.Interval)
		switch {
		case err != nil:
			s.log.Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
		case !ok:
			res.Locked = true
			return res, nil
		}
	}

	now := s.now()
	var cursor uint64
	for {
		batch, err := s.orders.ExpiredUnpaid(ctx, now, cursor, s.cfg.BatchSize)
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			return res, nil
		}
		s.sweepBatch(ctx, batch, now, &res)
		// orders that failed stay pending, so page by id rather than refetch
		cursor = batch[len(batch)-1].ID
		if len(batch) < s.cfg.BatchSize {
			return res, nil
		}
	}
}

func (s *ExpiryScheduler) sweepBatch(ctx context.Context, batch []domain.Order, now time.Time, res *SweepResult) {
	var cancelled, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range batch {
		order := &batch[i]
		g.Go(func() error {
			applied, err := s.orders.ExpireOrder(gctx, order, now)
			switch {
			case err != nil:
				failed.Add(1)
				s.log.Error("failed to cancel expired order",
					zap.Uint64("order_id", order.ID),
					zap.String("order_number", order.OrderNumber),
					zap.Error(err))
			case applied:
				cancelled.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Scanned += len(batch)
	res.Cancelled += int(cancelled.Load())
	res.Skipped += int(skipped.Load())
	res.Failed += int(failed.Load())
}
