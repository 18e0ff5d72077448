package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/leaseline/export-engine/internal/domain"
	"github.com/leaseline/export-engine/internal/engine"
	"github.com/leaseline/export-engine/internal/store"
	"github.com/leaseline/export-engine/internal/telemetry"
	ws "github.com/leaseline/export-engine/internal/websocket"
)

// JobName is the job health key shared by all workers in the pool.
const JobName = "delivery-worker-pool"

// EventStore is the slice of the persistence layer the pool drives. All
// coordination between workers happens through ClaimDue; there is no shared
// in-memory event state.
type EventStore interface {
	ClaimDue(ctx context.Context, limit int, now time.Time, leaseWindow time.Duration) ([]domain.ExportEvent, string, error)
	RecordOutcome(ctx context.Context, eventID, claimToken string, oc domain.Outcome) error
	ReleaseClaim(ctx context.Context, eventID, claimToken string, nextAttemptAt time.Time) error
}

// HealthReporter receives one heartbeat and one success/failure report per
// worker cycle.
type HealthReporter interface {
	Heartbeat(ctx context.Context, name string)
	ReportSuccess(ctx context.Context, name string)
	ReportFailure(ctx context.Context, name string, err error)
}

// Config holds the pool's tuning knobs. All of them are externally supplied;
// see internal/config for the defaults.
type Config struct {
	NumWorkers      int
	BatchSize       int
	PollInterval    time.Duration
	AttemptTimeout  time.Duration
	LeaseWindow     time.Duration
	TargetRateLimit int
	Policy          engine.RetryPolicy
}

// Pool runs a fixed number of workers, each looping claim → attempt → record
// against the event store. Delivery failures are contained within the cycle;
// only storage faults abort a cycle, and those surface through the health
// reporter rather than crashing the pool.
type Pool struct {
	cfg       Config
	store     EventStore
	deliverer *Deliverer
	health    HealthReporter
	breaker   *engine.CircuitBreaker
	limiter   *engine.RateLimiter
	hub       *ws.Hub
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool. Breaker, limiter and hub are optional; wire
// them with WithGates and WithHub.
func NewPool(cfg Config, st EventStore, deliverer *Deliverer, health HealthReporter, logger *slog.Logger) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.LeaseWindow <= 0 {
		cfg.LeaseWindow = 2 * cfg.AttemptTimeout
	}
	return &Pool{
		cfg:       cfg,
		store:     st,
		deliverer: deliverer,
		health:    health,
		logger:    logger,
		now:       time.Now,
	}
}

// WithGates attaches the per-target-host circuit breaker and rate limiter.
func (p *Pool) WithGates(cb *engine.CircuitBreaker, rl *engine.RateLimiter) *Pool {
	p.breaker = cb
	p.limiter = rl
	return p
}

// WithHub attaches the ops feed hub; outcomes are broadcast to it.
func (p *Pool) WithHub(hub *ws.Hub) *Pool {
	p.hub = hub
	return p
}

// Start launches the worker goroutines. They run until Stop is called or the
// parent context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runLoop(ctx, i)
	}
	p.logger.Info("delivery worker pool started",
		"num_workers", p.cfg.NumWorkers,
		"batch_size", p.cfg.BatchSize,
		"poll_interval", p.cfg.PollInterval,
	)
}

// Stop signals the workers to drain and waits for them. In-flight attempts
// finish or time out; claims that were never attempted are released back to
// pending.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("delivery worker pool stopped")
}

func (p *Pool) runLoop(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := p.runCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("worker cycle failed", "worker", id, "error", err)
			p.health.ReportFailure(context.Background(), JobName, err)
		} else {
			p.health.ReportSuccess(context.Background(), JobName)
		}

		// With a full batch there is likely more due work; skip the idle wait.
		if err == nil && processed >= p.cfg.BatchSize {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runCycle claims one batch of due events and processes it. It returns how
// many events it handled; an error means a storage fault ended the cycle
// early (delivery failures are never cycle errors).
func (p *Pool) runCycle(ctx context.Context) (int, error) {
	p.health.Heartbeat(ctx, JobName)

	events, token, err := p.store.ClaimDue(ctx, p.cfg.BatchSize, p.now(), p.cfg.LeaseWindow)
	if err != nil {
		return 0, err
	}

	for i, ev := range events {
		if ctx.Err() != nil {
			// Draining: hand back everything we claimed but never attempted.
			p.releaseBatch(events[i:], token)
			return i, nil
		}
		if err := p.processEvent(ev, token); err != nil {
			p.releaseBatch(events[i+1:], token)
			return i, err
		}
	}

	return len(events), nil
}

// processEvent runs one delivery attempt end to end. It uses contexts
// detached from the pool's shutdown context so a drain never cuts off an
// attempt that already started. The returned error is non-nil only for
// storage faults.
func (p *Pool) processEvent(ev domain.ExportEvent, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AttemptTimeout+p.cfg.LeaseWindow)
	defer cancel()

	if p.breaker != nil {
		if state, allowed := p.breaker.AllowRequest(ctx, ev.TargetURLHost); !allowed {
			telemetry.BreakerSkips.Inc()
			p.logger.Debug("target breaker open, releasing claim",
				"event_id", ev.EventID,
				"host", ev.TargetURLHost,
				"state", state,
			)
			return p.release(ctx, ev, token)
		}
	}
	if p.limiter != nil && !p.limiter.Allow(ctx, ev.TargetURLHost, p.cfg.TargetRateLimit) {
		telemetry.RateLimitSkips.Inc()
		return p.release(ctx, ev, token)
	}

	attempt := ev.Attempts + 1

	attemptCtx, cancelAttempt := context.WithTimeout(context.Background(), p.cfg.AttemptTimeout)
	telemetry.InFlightGauge.Inc()
	res := p.deliverer.Deliver(attemptCtx, ev, attempt)
	telemetry.InFlightGauge.Dec()
	cancelAttempt()

	category := engine.Classify(res)
	oc := p.buildOutcome(attempt, category)

	if p.breaker != nil {
		switch category {
		case engine.CategorySuccess:
			p.breaker.RecordSuccess(ctx, ev.TargetURLHost)
		case engine.CategoryTransient, engine.CategoryUnknown:
			p.breaker.RecordFailure(ctx, ev.TargetURLHost)
			// A client rejection means the host answered; it says nothing
			// about host health, so the breaker is left alone.
		}
	}

	if err := p.store.RecordOutcome(ctx, ev.EventID, token, oc); err != nil {
		if errors.Is(err, store.ErrLeaseExpired) {
			// Our lease was reclaimed while we worked, or the outcome was
			// already recorded. The other claim owns the event now.
			telemetry.StaleOutcomeDrops.Inc()
			p.logger.Warn("outcome dropped, claim no longer held",
				"event_id", ev.EventID,
				"attempt", attempt,
			)
			return nil
		}
		return err
	}

	p.observeOutcome(ev, attempt, oc)
	return nil
}

// buildOutcome maps an attempt's classification to the store transition:
// delivered, retry with a backoff schedule, or abandoned when the category
// never retries or the budget is spent.
func (p *Pool) buildOutcome(attempts int, category engine.Category) domain.Outcome {
	if category == engine.CategorySuccess {
		return domain.Outcome{Delivered: true}
	}

	code := domain.FailureCode(category)
	if next, ok := p.cfg.Policy.NextAttemptAt(attempts, category, p.now()); ok {
		return domain.Outcome{Retry: true, ErrorCode: code, NextAttemptAt: next}
	}
	return domain.Outcome{ErrorCode: code}
}

func (p *Pool) observeOutcome(ev domain.ExportEvent, attempt int, oc domain.Outcome) {
	var updateType string
	switch {
	case oc.Delivered:
		updateType = "delivered"
		telemetry.DeliveredCounter.Inc()
		p.logger.Info("event delivered",
			"event_id", ev.EventID,
			"org_id", ev.OrgID,
			"host", ev.TargetURLHost,
			"attempt", attempt,
		)
	case oc.Retry:
		updateType = "retrying"
		telemetry.RetriedCounter.Inc()
		p.logger.Warn("delivery failed, retry scheduled",
			"event_id", ev.EventID,
			"org_id", ev.OrgID,
			"host", ev.TargetURLHost,
			"attempt", attempt,
			"error_code", oc.ErrorCode,
			"next_attempt_at", oc.NextAttemptAt,
		)
	default:
		updateType = "abandoned"
		telemetry.AbandonedCounter.Inc()
		p.logger.Error("event abandoned",
			"event_id", ev.EventID,
			"org_id", ev.OrgID,
			"host", ev.TargetURLHost,
			"attempt", attempt,
			"error_code", oc.ErrorCode,
		)
	}

	if p.hub != nil {
		p.hub.Broadcast(ws.DeliveryUpdate{
			Type:       updateType,
			EventID:    ev.EventID,
			OrgID:      ev.OrgID,
			TargetHost: ev.TargetURLHost,
			Mode:       string(ev.Mode),
			Attempt:    attempt,
			ErrorCode:  string(oc.ErrorCode),
			Timestamp:  p.now(),
		})
	}
}

// release hands a claimed event back to pending with a short pause, without
// consuming any of its attempt budget.
func (p *Pool) release(ctx context.Context, ev domain.ExportEvent, token string) error {
	err := p.store.ReleaseClaim(ctx, ev.EventID, token, p.now().Add(p.cfg.Policy.Base))
	if errors.Is(err, store.ErrLeaseExpired) {
		return nil
	}
	return err
}

func (p *Pool) releaseBatch(events []domain.ExportEvent, token string) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, ev := range events {
		if err := p.release(ctx, ev, token); err != nil {
			// The lease will expire and another worker will reclaim it.
			p.logger.Warn("failed to release unattempted claim",
				"event_id", ev.EventID,
				"error", err,
			)
		}
	}
}
