package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

// Store wraps a Postgres connection pool. It is the one shared mutable
// resource in the system (spec §5 "Shared resources") — the Field Catalog
// and compiler allocate no shared state of their own.
//
// The teacher's own store (internal/store/store.go) wraps a plain
// *database/sql.DB; we generalize to *sqlx.DB so the fundamentals/quote/
// alert-subscription bundles can be scanned directly into the structs in
// types.go via StructScan, the way the pack's go.mod already declares
// github.com/jmoiron/sqlx for but the teacher never exercises.
type Store struct {
	db *sqlx.DB
}

// New opens a Postgres connection pool at connStr. Grounded in the
// teacher's NewStore, which also opens eagerly and pings once to fail fast.
func New(connStr string) (*Store, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// schemaDDL creates every table the compiler's fixed join set assumes
// (spec §6.3), plus the alert_subscriptions table (spec §3.5).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS instruments (
	ticker     TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	sector     TEXT,
	industry   TEXT,
	exchange   TEXT,
	market_cap DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS fundamentals (
	id                     BIGSERIAL PRIMARY KEY,
	ticker                 TEXT NOT NULL REFERENCES instruments(ticker),
	pe_ratio               DOUBLE PRECISION,
	eps                    DOUBLE PRECISION,
	net_income             DOUBLE PRECISION,
	revenue                DOUBLE PRECISION,
	revenue_growth_yoy     DOUBLE PRECISION,
	roe                    DOUBLE PRECISION,
	dividend_yield         DOUBLE PRECISION,
	total_debt             DOUBLE PRECISION,
	free_cash_flow         DOUBLE PRECISION,
	buyback_announced_date TIMESTAMPTZ,
	earnings_date          TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS fundamentals_ticker_id_idx ON fundamentals (ticker, id DESC);

CREATE TABLE IF NOT EXISTS prices (
	ticker            TEXT NOT NULL REFERENCES instruments(ticker),
	time              TIMESTAMPTZ NOT NULL,
	close             DOUBLE PRECISION,
	rsi               DOUBLE PRECISION,
	sma50             DOUBLE PRECISION,
	sma200            DOUBLE PRECISION,
	change_percent_1d DOUBLE PRECISION,
	change_percent_1w DOUBLE PRECISION,
	change_percent_1m DOUBLE PRECISION,
	PRIMARY KEY (ticker, time)
);
CREATE INDEX IF NOT EXISTS prices_ticker_time_idx ON prices (ticker, time DESC);

CREATE TABLE IF NOT EXISTS debt_profile (
	id                BIGSERIAL PRIMARY KEY,
	ticker            TEXT NOT NULL REFERENCES instruments(ticker),
	debt_to_equity    DOUBLE PRECISION,
	interest_coverage DOUBLE PRECISION,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS debt_profile_ticker_id_idx ON debt_profile (ticker, id DESC);

CREATE TABLE IF NOT EXISTS cash_flow (
	id                   BIGSERIAL PRIMARY KEY,
	ticker               TEXT NOT NULL REFERENCES instruments(ticker),
	operating_cash_flow  DOUBLE PRECISION,
	capex                DOUBLE PRECISION,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS cash_flow_ticker_id_idx ON cash_flow (ticker, id DESC);

CREATE TABLE IF NOT EXISTS analyst_estimates (
	id               BIGSERIAL PRIMARY KEY,
	ticker           TEXT NOT NULL REFERENCES instruments(ticker),
	estimate_date    TIMESTAMPTZ NOT NULL DEFAULT now(),
	price_target_avg DOUBLE PRECISION,
	rating_avg       DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS analyst_estimates_ticker_id_idx ON analyst_estimates (ticker, id DESC);

CREATE TABLE IF NOT EXISTS alert_subscriptions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	ticker           TEXT,
	kind             TEXT NOT NULL,
	condition        JSONB NOT NULL,
	frequency_seconds INTEGER NOT NULL DEFAULT 60,
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	last_triggered   TIMESTAMPTZ,
	trigger_count    INTEGER NOT NULL DEFAULT 0,
	last_evaluated   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS alert_subscriptions_active_idx ON alert_subscriptions (active, last_triggered);
`

// InitSchema creates every table the compiler and evaluator assume, if they
// do not already exist. Idempotent, safe to call on every daemon start.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// RunScreen executes compiler-emitted SQL and scans every row into a
// column-name-keyed map, mirroring the Screener run endpoint's "results"
// array shape (spec §6.1). The SQL and params come only from
// internal/compiler.Compiled — never from user text directly.
func (s *Store) RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error) {
	rows, err := s.db.QueryxContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: run screen: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("store: scan screen row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ActiveAlerts loads the active alert working set per spec §4.6 step 1:
// active=true and either never triggered or outside the rate-limit window.
func (s *Store) ActiveAlerts(ctx context.Context, rateLimitWindow time.Duration) ([]AlertSubscription, error) {
	const q = `
SELECT id, user_id, ticker, kind, condition, frequency_seconds, active,
       last_triggered, trigger_count, last_evaluated
FROM alert_subscriptions
WHERE active = TRUE
  AND (last_triggered IS NULL OR last_triggered < $1)`
	var subs []AlertSubscription
	cutoff := time.Now().Add(-rateLimitWindow)
	if err := s.db.SelectContext(ctx, &subs, q, cutoff); err != nil {
		return nil, fmt.Errorf("store: active alerts: %w", err)
	}
	return subs, nil
}

// MarkTriggered updates last_triggered, trigger_count, and last_evaluated
// together (spec §4.5 "On trigger"), one alert at a time (spec §5 "per-alert
// state updates ... no batched write reordering").
func (s *Store) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE alert_subscriptions SET last_triggered = $2, trigger_count = trigger_count + 1, last_evaluated = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("store: mark triggered: %w", err)
	}
	return nil
}

// MarkEvaluated updates only last_evaluated (spec §4.5 "On non-trigger").
func (s *Store) MarkEvaluated(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE alert_subscriptions SET last_evaluated = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("store: mark evaluated: %w", err)
	}
	return nil
}

// CreateAlert inserts a new subscription (spec §6.1 Alert CRUD) and returns
// its generated ID.
func (s *Store) CreateAlert(ctx context.Context, a AlertSubscription) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `
INSERT INTO alert_subscriptions (id, user_id, ticker, kind, condition, frequency_seconds, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.UserID, a.Ticker, a.Kind, a.Condition, a.FrequencySec, a.Active)
	if err != nil {
		return "", fmt.Errorf("store: create alert: %w", err)
	}
	return a.ID, nil
}

// GetAlert fetches one subscription by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*AlertSubscription, error) {
	var a AlertSubscription
	const q = `
SELECT id, user_id, ticker, kind, condition, frequency_seconds, active,
       last_triggered, trigger_count, last_evaluated
FROM alert_subscriptions WHERE id = $1`
	if err := s.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, fmt.Errorf("store: get alert: %w", err)
	}
	return &a, nil
}

// ListAlerts lists every subscription owned by a user.
func (s *Store) ListAlerts(ctx context.Context, userID string) ([]AlertSubscription, error) {
	const q = `
SELECT id, user_id, ticker, kind, condition, frequency_seconds, active,
       last_triggered, trigger_count, last_evaluated
FROM alert_subscriptions WHERE user_id = $1 ORDER BY id`
	var subs []AlertSubscription
	if err := s.db.SelectContext(ctx, &subs, q, userID); err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	return subs, nil
}

// UpdateAlertActive flips a subscription's active flag (pause/resume,
// spec §4.6 "Active ⇄ Paused" state machine).
func (s *Store) UpdateAlertActive(ctx context.Context, id string, active bool) error {
	const q = `UPDATE alert_subscriptions SET active = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, active)
	if err != nil {
		return fmt.Errorf("store: update alert active: %w", err)
	}
	return nil
}

// DeleteAlert removes a subscription permanently (spec §4.6 "-> Deleted").
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alert_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete alert: %w", err)
	}
	return nil
}

// Quote fetches the latest price-history row for ticker.
func (s *Store) Quote(ctx context.Context, ticker string) (*Quote, error) {
	var q Quote
	const query = `SELECT ticker, time, close, rsi, sma50, sma200, change_percent_1d, change_percent_1w, change_percent_1m
FROM prices WHERE ticker = $1 ORDER BY time DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &q, query, ticker); err != nil {
		return nil, fmt.Errorf("store: quote %s: %w", ticker, err)
	}
	return &q, nil
}

// Metadata fetches instrument identity fields for ticker.
func (s *Store) Metadata(ctx context.Context, ticker string) (*Metadata, error) {
	var m Metadata
	const query = `SELECT ticker, sector, industry, exchange FROM instruments WHERE ticker = $1`
	if err := s.db.GetContext(ctx, &m, query, ticker); err != nil {
		return nil, fmt.Errorf("store: metadata %s: %w", ticker, err)
	}
	return &m, nil
}

// Fundamentals fetches the latest fundamentals row for ticker.
func (s *Store) Fundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	var f Fundamentals
	const query = `
SELECT ticker, id, pe_ratio, eps, net_income, revenue, revenue_growth_yoy, roe,
       dividend_yield, total_debt, free_cash_flow, buyback_announced_date, earnings_date
FROM fundamentals WHERE ticker = $1 ORDER BY id DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &f, query, ticker); err != nil {
		return nil, fmt.Errorf("store: fundamentals %s: %w", ticker, err)
	}
	return &f, nil
}

// DistinctTickers returns every ticker in the instruments table, sorted; the
// HTTP market tickers endpoint serves it.
func (s *Store) DistinctTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	if err := s.db.SelectContext(ctx, &tickers, `SELECT ticker FROM instruments ORDER BY ticker`); err != nil {
		return nil, fmt.Errorf("store: distinct tickers: %w", err)
	}
	return tickers, nil
}
