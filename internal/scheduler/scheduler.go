// Package scheduler implements the Alert Scheduler (spec §4.6): a
// gocron-driven periodic loop that loads the active alert working set,
// groups it by ticker, fetches fresh data per group with bounded
// parallelism, and hands each alert to the Evaluator.
//
// The scheduler-wraps-gocron shape is grounded in the teacher pack's
// penny-vault-pvbt/cmd/serve.go, which builds a gocron.Scheduler and calls
// StartAsync directly from the server's startup path. Bounded fan-out uses
// golang.org/x/sync/semaphore the way the pack's
// Andrew50-peripheral/services/backend/internal/services/marketdata
// OHLCV backfillers bound concurrent API calls with a weighted semaphore.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"screenforge/internal/evaluator"
	"screenforge/internal/notify"
	"screenforge/internal/store"
)

// DataStore is the subset of internal/datastore.DataStore the scheduler
// needs to drive a cycle.
type DataStore interface {
	ActiveAlerts(ctx context.Context, rateLimitWindow time.Duration) ([]store.AlertSubscription, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	MarkEvaluated(ctx context.Context, id string, at time.Time) error
	Quote(ctx context.Context, ticker string) (*store.Quote, error)
	Metadata(ctx context.Context, ticker string) (*store.Metadata, error)
	Fundamentals(ctx context.Context, ticker string) (*store.Fundamentals, error)
}

// Config controls cycle cadence and fan-out bounds (spec §6.5).
type Config struct {
	CadenceSeconds    int
	RateLimitWindow   time.Duration
	MaxParallelGroups int
	FetchTimeout      time.Duration
}

// Scheduler is the single writer of alert state; it is not safe to run two
// instances against the same DataStore concurrently (spec §5 "the Alert
// Scheduler is a single-writer periodic loop").
type Scheduler struct {
	cfg   Config
	store DataStore
	eval  *evaluator.Evaluator
	sink  notify.Sink
	gate  *evaluator.RateGate

	cron    *gocron.Scheduler
	running atomic.Bool // non-overlapping cycles: skip, don't queue, on overrun
}

// New builds a Scheduler. tz is the gocron scheduler's reference timezone;
// pass time.UTC unless the deployment has a reason not to.
func New(cfg Config, tz *time.Location, ds DataStore, eval *evaluator.Evaluator, sink notify.Sink) *Scheduler {
	if cfg.MaxParallelGroups <= 0 {
		cfg.MaxParallelGroups = 32
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Scheduler{
		cfg:   cfg,
		store: ds,
		eval:  eval,
		sink:  sink,
		gate:  evaluator.NewRateGate(),
		cron:  gocron.NewScheduler(tz),
	}
}

// Start schedules the recurring cycle and begins running it asynchronously.
// Cancelling ctx stops new cycles from starting; an in-flight cycle runs to
// completion (spec §5 cancellation semantics: "completes the current
// alert's DB writes then exits").
func (s *Scheduler) Start(ctx context.Context) error {
	cadence := s.cfg.CadenceSeconds
	if cadence <= 0 {
		cadence = 60
	}
	if _, err := s.cron.Every(cadence).Seconds().Do(func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("scheduler: schedule cycle: %w", err)
	}
	s.cron.StartAsync()

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Stop halts the recurring cycle immediately; call this for a synchronous
// shutdown instead of relying on context cancellation.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce executes one pass of spec §4.6 steps 1-4 synchronously. Start
// calls it on every cron tick; tests and the CLI's one-shot debug paths
// can call it directly. It is skipped entirely, not queued, if a previous
// call is still running.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("scheduler: previous cycle still running, skipping this tick")
		return
	}
	defer s.running.Store(false)

	alerts, err := s.store.ActiveAlerts(ctx, s.cfg.RateLimitWindow)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to load active alert working set")
		return
	}
	if len(alerts) == 0 {
		return
	}

	groups := groupByTicker(alerts)

	sem := semaphore.NewWeighted(int64(s.cfg.MaxParallelGroups))
	var wg sync.WaitGroup
	for ticker, group := range groups {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("scheduler: cycle context cancelled while acquiring group slot")
			break
		}
		wg.Add(1)
		go func(ticker string, group []store.AlertSubscription) {
			defer wg.Done()
			defer sem.Release(1)
			s.runGroup(ctx, ticker, group)
		}(ticker, group)
	}
	wg.Wait()
}

// groupByTicker implements spec §4.6 step 2, bucketing tickerless alerts
// under "" (the "all-instruments" bucket).
func groupByTicker(alerts []store.AlertSubscription) map[string][]store.AlertSubscription {
	groups := make(map[string][]store.AlertSubscription)
	for _, a := range alerts {
		key := ""
		if a.Ticker != nil {
			key = *a.Ticker
		}
		groups[key] = append(groups[key], a)
	}
	return groups
}

// runGroup fetches one ticker's data bundle (tolerating partial failures
// per spec §4.6 step 3) and evaluates every alert in the group against it.
// The tickerless group gets an empty bundle: the data-driven kinds do not
// trigger against it, and the Evaluator rejects a tickerless custom_dsl
// alert with an error.
func (s *Scheduler) runGroup(ctx context.Context, ticker string, group []store.AlertSubscription) {
	var bundle store.DataBundle
	if ticker != "" {
		bundle = s.fetchBundle(ctx, ticker)
	}

	for _, sub := range group {
		if !s.gate.Allow(sub.ID, sub.FrequencySec) {
			continue
		}
		s.evaluateOne(ctx, sub, bundle)
	}
}

// fetchBundle fetches quote, metadata, and fundamentals in parallel,
// nulling whichever source fails or times out rather than aborting the
// whole group (spec §4.6 step 3).
func (s *Scheduler) fetchBundle(ctx context.Context, ticker string) store.DataBundle {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var bundle store.DataBundle
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		q, err := s.store.Quote(fetchCtx, ticker)
		if err != nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("scheduler: quote fetch failed")
			return
		}
		bundle.Quote = q
	}()
	go func() {
		defer wg.Done()
		m, err := s.store.Metadata(fetchCtx, ticker)
		if err != nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("scheduler: metadata fetch failed")
			return
		}
		bundle.Metadata = m
	}()
	go func() {
		defer wg.Done()
		f, err := s.store.Fundamentals(fetchCtx, ticker)
		if err != nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("scheduler: fundamentals fetch failed")
			return
		}
		bundle.Fundamentals = f
	}()

	wg.Wait()
	return bundle
}

// evaluateOne evaluates a single alert and performs its individual state
// write (spec §4.6 step 4, §5 "no batched write reordering"). An
// evaluation exception is logged and otherwise swallowed so one bad alert
// cannot abort the cycle.
func (s *Scheduler) evaluateOne(ctx context.Context, sub store.AlertSubscription, bundle store.DataBundle) {
	result, err := s.eval.Evaluate(ctx, sub, bundle)
	if err != nil {
		log.Error().Err(err).Str("alert_id", sub.ID).Msg("scheduler: alert evaluation failed")
		return
	}

	now := time.Now()
	if !result.Triggered {
		if err := s.store.MarkEvaluated(ctx, sub.ID, now); err != nil {
			log.Error().Err(err).Str("alert_id", sub.ID).Msg("scheduler: failed to record evaluation")
		}
		return
	}

	if err := s.store.MarkTriggered(ctx, sub.ID, now); err != nil {
		log.Error().Err(err).Str("alert_id", sub.ID).Msg("scheduler: failed to record trigger")
		return
	}

	ticker := ""
	if sub.Ticker != nil {
		ticker = *sub.Ticker
	}
	n := notify.Notification{
		AlertID:   sub.ID,
		UserID:    sub.UserID,
		Ticker:    ticker,
		Title:     fmt.Sprintf("%s alert triggered", sub.Kind),
		Message:   result.Reason,
		Payload:   result.Payload,
		Triggered: now,
	}
	if err := s.sink.Emit(ctx, n); err != nil {
		log.Warn().Err(err).Str("alert_id", sub.ID).Msg("scheduler: notification emit failed")
	}
}
