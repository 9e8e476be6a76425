// Package scheduler runs the periodic sweep: overdue invoices, stale
// payment sessions, missed orders and the notification outbox.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/groupcart/groupcart/internal/clock"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	"github.com/groupcart/groupcart/internal/notification"
	obsmetrics "github.com/groupcart/groupcart/internal/observability/metrics"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler misconfigured")

// Config tunes the sweep loop.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockKey     string
	LockTTL     time.Duration
	OutboxBatch int
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = 5 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	if c.LockKey == "" {
		c.LockKey = "groupcart:sweep"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.RunInterval
	}
	if c.OutboxBatch <= 0 {
		c.OutboxBatch = 100
	}
	return c
}

type Params struct {
	fx.In

	Config     Config
	Log        *zap.Logger
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	PaymentSvc paymentdomain.Service
	OrderSvc   orderdomain.Service
	Publisher  *notification.Publisher
	Locker     *Locker             `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	cfg        Config
	log        *zap.Logger
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	paymentSvc paymentdomain.Service
	orderSvc   orderdomain.Service
	publisher  *notification.Publisher
	locker     *Locker
	metrics    *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.InvoiceSvc == nil || p.PaymentSvc == nil || p.OrderSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		cfg:        p.Config.withDefaults(),
		log:        p.Log.Named("scheduler"),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		paymentSvc: p.PaymentSvc,
		orderSvc:   p.OrderSvc,
		publisher:  p.Publisher,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}, nil
}

// RunOnce executes one sweep pass. The Redis lock keeps concurrent
// instances from double-sweeping; losing the lock skips the pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	token, acquired, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("sweep lock held elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := s.locker.Release(ctx, s.cfg.LockKey, token); err != nil {
			s.log.Warn("sweep lock release failed", zap.Error(err))
		}
	}()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.runJob(ctx, "overdue_invoices", s.sweepOverdueInvoices))
	record(s.runJob(ctx, "stale_payments", s.sweepStalePayments))
	record(s.runJob(ctx, "missed_orders", s.sweepMissedOrders))
	record(s.runJob(ctx, "notification_outbox", s.drainOutbox))
	return firstErr
}

// RunForever sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	s.metrics.RecordSweep(ctx, name, s.clock.Now().Sub(start), err != nil)
	if err != nil {
		s.log.Warn("sweep job failed", zap.String("job", name), zap.Error(err))
	}
	return err
}

func (s *Scheduler) sweepOverdueInvoices(ctx context.Context) error {
	count, err := s.invoiceSvc.MarkOverdue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Info("invoices marked overdue", zap.Int("count", count))
	}
	return nil
}

func (s *Scheduler) sweepStalePayments(ctx context.Context) error {
	count, err := s.paymentSvc.ExpireStale(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Info("stale payments expired", zap.Int("count", count))
	}
	return nil
}

func (s *Scheduler) sweepMissedOrders(ctx context.Context) error {
	count, err := s.orderSvc.MaterializeMissing(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Info("missed orders materialized", zap.Int("count", count))
	}
	return nil
}

func (s *Scheduler) drainOutbox(ctx context.Context) error {
	if s.publisher == nil {
		return nil
	}
	count, err := s.publisher.PublishPending(ctx, s.cfg.OutboxBatch)
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Info("notifications published", zap.Int("count", count))
	}
	return nil
}
