// Package notify implements the notification sink the Alert Evaluator
// writes to once a subscription triggers (spec §4.5, §6.4).
//
// The sink-interface-plus-zerolog-implementation shape is grounded on the
// teacher pack's penny-vault-pvbt/portfolio/notify.go, which logs every
// notification through rs/zerolog's global logger rather than inlining a
// delivery mechanism into the evaluation loop; this package keeps that
// separation but drops its sendgrid email delivery, which is not part of
// this module's dependency set.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Notification is one triggered-alert event (spec §4.5 "emit a
// notification"). Payload carries evaluator-specific detail (the observed
// value, the threshold crossed, the period window) for a downstream
// consumer to render without re-deriving it.
type Notification struct {
	AlertID   string
	UserID    string
	Ticker    string
	Title     string
	Message   string
	Payload   map[string]any
	Triggered time.Time
}

// Sink is implemented by every notification backend. Emit must not block
// the Scheduler's fan-out for longer than it takes to enqueue; a slow
// downstream (email, webhook) belongs behind its own buffering, not in the
// evaluation hot path.
type Sink interface {
	Emit(ctx context.Context, n Notification) error
}

// LogSink emits every notification as a structured zerolog event. It is
// the default sink (spec §6.4 names no required external delivery
// mechanism), and the one other sinks can be layered behind via MultiSink
// for local development and tests.
type LogSink struct{}

// NewLogSink builds a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

// Emit logs the notification at info level and never errors; a sink that
// cannot fail keeps the Evaluator's trigger path simple.
func (LogSink) Emit(ctx context.Context, n Notification) error {
	evt := log.Info().
		Str("alert_id", n.AlertID).
		Str("user_id", n.UserID).
		Str("ticker", n.Ticker).
		Str("title", n.Title).
		Time("triggered", n.Triggered)
	for k, v := range n.Payload {
		evt = evt.Interface(k, v)
	}
	evt.Msg(n.Message)
	return nil
}

// MultiSink fans a notification out to every wrapped Sink, collecting (but
// not stopping on) individual failures so one broken delivery channel
// cannot suppress another.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink wraps the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

// Emit calls Emit on every wrapped sink, logging every failure and
// returning the last failure if any occurred.
func (m *MultiSink) Emit(ctx context.Context, n Notification) error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, n); err != nil {
			log.Warn().Err(err).Str("alert_id", n.AlertID).Msg("notification sink failed")
			lastErr = err
		}
	}
	return lastErr
}
