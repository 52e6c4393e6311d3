// Package store is the data-store boundary (spec §6.3): the instrument
// identity table, the one-row-per-snapshot fundamentals/price/debt/cash-flow/
// analyst-estimate tables the Compiler's LATERAL joins assume, and the alert
// subscription table the Scheduler and Evaluator read and update.
//
// The struct-per-table shape and sqlx struct tags follow the teacher's own
// store layer (internal/store/store.go's CBU/Product/Role structs), adapted
// from the onboarding schema to the financial-instrument schema spec §6.3
// names.
package store

import "time"

// Instrument is one row of the canonical instruments table (spec §6.3).
type Instrument struct {
	Ticker    string  `db:"ticker" json:"ticker"`
	Name      string  `db:"name" json:"name"`
	Sector    string  `db:"sector" json:"sector"`
	Industry  string  `db:"industry" json:"industry"`
	Exchange  string  `db:"exchange" json:"exchange"`
	MarketCap float64 `db:"market_cap" json:"market_cap"`
}

// Quote is the latest price-history row for a ticker, fed to the Alert
// Evaluator's price_threshold/price_change/technical checks (spec §4.5).
type Quote struct {
	Ticker          string    `db:"ticker" json:"ticker"`
	Time            time.Time `db:"time" json:"time"`
	Close           float64   `db:"close" json:"close"`
	RSI             *float64  `db:"rsi" json:"rsi,omitempty"`
	SMA50           *float64  `db:"sma50" json:"sma_50,omitempty"`
	SMA200          *float64  `db:"sma200" json:"sma_200,omitempty"`
	ChangePercent1D *float64  `db:"change_percent_1d" json:"change_percent_1d,omitempty"`
	ChangePercent1W *float64  `db:"change_percent_1w" json:"change_percent_1w,omitempty"`
	ChangePercent1M *float64  `db:"change_percent_1m" json:"change_percent_1m,omitempty"`
}

// Fundamentals is the latest fundamentals-table row for a ticker (spec §6.3).
type Fundamentals struct {
	Ticker               string     `db:"ticker" json:"ticker"`
	ID                   int64      `db:"id" json:"id"`
	PERatio              *float64   `db:"pe_ratio" json:"pe_ratio,omitempty"`
	EPS                  *float64   `db:"eps" json:"eps,omitempty"`
	NetIncome            *float64   `db:"net_income" json:"net_income,omitempty"`
	Revenue              *float64   `db:"revenue" json:"revenue,omitempty"`
	RevenueGrowthYoY     *float64   `db:"revenue_growth_yoy" json:"revenue_growth_yoy,omitempty"`
	ROE                  *float64   `db:"roe" json:"roe,omitempty"`
	DividendYield        *float64   `db:"dividend_yield" json:"dividend_yield,omitempty"`
	TotalDebt            *float64   `db:"total_debt" json:"total_debt,omitempty"`
	FreeCashFlow         *float64   `db:"free_cash_flow" json:"free_cash_flow,omitempty"`
	BuybackAnnouncedDate *time.Time `db:"buyback_announced_date" json:"buyback_announced_date,omitempty"`
	EarningsDate         *time.Time `db:"earnings_date" json:"earnings_date,omitempty"`
}

// Metadata bundles the identity fields the Evaluator reads alongside a
// quote/fundamentals pair — kept distinct from Instrument so a partial
// fetch failure (spec §4.6 step 3, "tolerate per-source failures") can null
// just this bundle without affecting the other two.
type Metadata struct {
	Ticker   string `json:"ticker"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
	Exchange string `json:"exchange"`
}

// AlertKind enumerates the §3.5 subscription kinds.
type AlertKind string

const (
	AlertPriceThreshold AlertKind = "price_threshold"
	AlertPriceChange    AlertKind = "price_change"
	AlertFundamental    AlertKind = "fundamental"
	AlertEvent          AlertKind = "event"
	AlertTechnical      AlertKind = "technical"
	AlertCustomDSL      AlertKind = "custom_dsl"
)

// AlertSubscription is one row of the alert_subscriptions table (spec §3.5).
// Condition is kept as raw JSON; the Evaluator unmarshals it per Kind since
// each kind's condition shape differs (spec §4.5).
type AlertSubscription struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	Ticker         *string    `db:"ticker" json:"ticker,omitempty"`
	Kind           AlertKind  `db:"kind" json:"kind"`
	Condition      []byte     `db:"condition" json:"condition"`
	FrequencySec   int        `db:"frequency_seconds" json:"frequency_seconds"`
	Active         bool       `db:"active" json:"active"`
	LastTriggered  *time.Time `db:"last_triggered" json:"last_triggered,omitempty"`
	TriggerCount   int        `db:"trigger_count" json:"trigger_count"`
	LastEvaluated  *time.Time `db:"last_evaluated" json:"last_evaluated,omitempty"`
}

// DataBundle is the (quote, metadata, fundamentals) triple the Scheduler
// fetches per ticker-group and hands to the Evaluator (spec §4.6 step 3).
// Any member may be nil when its source fetch failed or timed out; the
// Evaluator's contract (spec §8 invariant 6) requires triggered=false when
// all three are nil.
type DataBundle struct {
	Quote        *Quote
	Metadata     *Metadata
	Fundamentals *Fundamentals
}
