// Package evaluator implements the Alert Evaluator (spec §4.5): given one
// alert subscription and a freshly fetched data bundle, decide whether it
// triggers and produce a human-readable reason.
//
// The per-kind condition struct plus a closed type switch over Kind is
// grounded in the teacher's own hedge-fund DSL verb dispatch
// (internal/hf-investor/dsl/hedge_fund_dsl.go's switch over verb strings),
// adapted here to switch over store.AlertKind instead. Numeric comparisons
// use shopspring/decimal rather than float64 so a threshold like 19.995
// never trips on binary-fraction rounding at the boundary.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/screenql"
	"screenforge/internal/store"
	"screenforge/internal/validator"
)

// Result is the Evaluator's verdict for one alert (spec §4.5 contract).
type Result struct {
	Triggered bool
	Reason    string
	// Payload carries the observed values behind Reason, for the
	// notification record (spec §6.4 emit(... payload)).
	Payload map[string]any
}

// Runner is executed for custom_dsl alerts (spec §4.5 "delegated to the DSL
// compiler and executed as a regular screener with ticker narrowing"). It
// is satisfied by internal/datastore.DataStore's RunScreen method.
type Runner interface {
	RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error)
}

// Evaluator evaluates alert subscriptions against live data bundles.
type Evaluator struct {
	cat   *catalog.Catalog
	val   *validator.Validator
	comp  *compiler.Compiler
	store Runner
}

// New builds an Evaluator. cat/val/comp back the custom_dsl path; store
// executes the compiled SQL for that path.
func New(cat *catalog.Catalog, val *validator.Validator, comp *compiler.Compiler, store Runner) *Evaluator {
	return &Evaluator{cat: cat, val: val, comp: comp, store: store}
}

// priceThresholdCondition is the condition shape for kind price_threshold.
type priceThresholdCondition struct {
	Op    catalog.Operator `json:"op"`
	Value float64          `json:"value"`
}

// priceChangeCondition is the condition shape for kind price_change.
type priceChangeCondition struct {
	Op     catalog.Operator `json:"op"`
	Value  float64          `json:"value"`
	Period string           `json:"period"` // "1d" | "1w" | "1m"
}

// fundamentalCondition is the condition shape for kind fundamental.
type fundamentalCondition struct {
	Metric string           `json:"metric"`
	Op     catalog.Operator `json:"op"`
	Value  float64          `json:"value"`
}

// eventCondition is the condition shape for kind event. Exactly one of
// DaysBefore/DaysLookback applies, selected by EventType.
type eventCondition struct {
	EventType    string `json:"event_type"` // "earnings_date" | "buyback_announced"
	DaysBefore   int    `json:"days_before,omitempty"`
	DaysLookback int    `json:"days_lookback,omitempty"`
}

// technicalCondition is the condition shape for kind technical.
type technicalCondition struct {
	Indicator string           `json:"indicator"` // "rsi" | "sma50" | "sma200"
	Op        catalog.Operator `json:"op"`
	Value     float64          `json:"value"`
}

// customDSLCondition is the condition shape for kind custom_dsl: a full
// screenql wire Rule, the same shape accepted at the HTTP screener
// endpoint.
type customDSLCondition struct {
	Filter json.RawMessage `json:"filter"`
}

// Evaluate implements spec §4.5's contract. It never returns an error for
// a well-formed subscription with a missing data source; a missing source
// simply cannot satisfy that kind's condition and is treated as
// non-triggering, consistent with invariant 6 (all-nil bundle => false).
func (e *Evaluator) Evaluate(ctx context.Context, sub store.AlertSubscription, bundle store.DataBundle) (Result, error) {
	switch sub.Kind {
	case store.AlertPriceThreshold:
		return e.evalPriceThreshold(sub, bundle)
	case store.AlertPriceChange:
		return e.evalPriceChange(sub, bundle)
	case store.AlertFundamental:
		return e.evalFundamental(sub, bundle)
	case store.AlertEvent:
		return e.evalEvent(sub, bundle)
	case store.AlertTechnical:
		return e.evalTechnical(sub, bundle)
	case store.AlertCustomDSL:
		return e.evalCustomDSL(ctx, sub)
	default:
		return Result{}, fmt.Errorf("evaluator: unknown alert kind %q", sub.Kind)
	}
}

func compareDecimal(op catalog.Operator, observed, threshold decimal.Decimal) (bool, error) {
	switch op {
	case catalog.OpLT:
		return observed.LessThan(threshold), nil
	case catalog.OpGT:
		return observed.GreaterThan(threshold), nil
	case catalog.OpLE:
		return observed.LessThanOrEqual(threshold), nil
	case catalog.OpGE:
		return observed.GreaterThanOrEqual(threshold), nil
	case catalog.OpEQ:
		return observed.Equal(threshold), nil
	case catalog.OpNE:
		return !observed.Equal(threshold), nil
	default:
		return false, fmt.Errorf("evaluator: unsupported comparison operator %q", op)
	}
}

func (e *Evaluator) evalPriceThreshold(sub store.AlertSubscription, bundle store.DataBundle) (Result, error) {
	if bundle.Quote == nil {
		return Result{Triggered: false, Reason: "no quote available"}, nil
	}
	var cond priceThresholdCondition
	if err := json.Unmarshal(sub.Condition, &cond); err != nil {
		return Result{}, fmt.Errorf("evaluator: price_threshold condition: %w", err)
	}

	observed := decimal.NewFromFloat(bundle.Quote.Close)
	threshold := decimal.NewFromFloat(cond.Value)
	triggered, err := compareDecimal(cond.Op, observed, threshold)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Triggered: triggered,
		Reason:    fmt.Sprintf("price %s %s %v", observed.String(), cond.Op, cond.Value),
		Payload:   map[string]any{"price": bundle.Quote.Close, "threshold": cond.Value, "op": cond.Op},
	}, nil
}

func (e *Evaluator) evalPriceChange(sub store.AlertSubscription, bundle store.DataBundle) (Result, error) {
	if bundle.Quote == nil {
		return Result{Triggered: false, Reason: "no quote available"}, nil
	}
	var cond priceChangeCondition
	if err := json.Unmarshal(sub.Condition, &cond); err != nil {
		return Result{}, fmt.Errorf("evaluator: price_change condition: %w", err)
	}

	var observedPtr *float64
	switch cond.Period {
	case "1d":
		observedPtr = bundle.Quote.ChangePercent1D
	case "1w":
		observedPtr = bundle.Quote.ChangePercent1W
	case "1m":
		observedPtr = bundle.Quote.ChangePercent1M
	default:
		return Result{}, fmt.Errorf("evaluator: price_change condition: unknown period %q", cond.Period)
	}
	if observedPtr == nil {
		return Result{Triggered: false, Reason: fmt.Sprintf("no %s change data available", cond.Period)}, nil
	}

	observed := decimal.NewFromFloat(*observedPtr)
	threshold := decimal.NewFromFloat(cond.Value)
	triggered, err := compareDecimal(cond.Op, observed, threshold)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Triggered: triggered,
		Reason:    fmt.Sprintf("%s change %s %s %v", cond.Period, observed.String(), cond.Op, cond.Value),
		Payload:   map[string]any{"change_percent": *observedPtr, "period": cond.Period, "threshold": cond.Value, "op": cond.Op},
	}, nil
}

// fundamentalMetricValue reads a named metric off a Fundamentals row. Only
// the metrics the catalog actually exposes as scalar fundamentals-table
// columns are supported here; derived/computed fields are not evaluated
// inline (an alert wanting those should use custom_dsl).
func fundamentalMetricValue(f *store.Fundamentals, metric string) (float64, bool) {
	switch metric {
	case "pe_ratio":
		return derefOr(f.PERatio), f.PERatio != nil
	case "eps":
		return derefOr(f.EPS), f.EPS != nil
	case "net_income":
		return derefOr(f.NetIncome), f.NetIncome != nil
	case "revenue":
		return derefOr(f.Revenue), f.Revenue != nil
	case "revenue_growth_yoy":
		return derefOr(f.RevenueGrowthYoY), f.RevenueGrowthYoY != nil
	case "roe":
		return derefOr(f.ROE), f.ROE != nil
	case "dividend_yield":
		return derefOr(f.DividendYield), f.DividendYield != nil
	case "total_debt":
		return derefOr(f.TotalDebt), f.TotalDebt != nil
	case "free_cash_flow":
		return derefOr(f.FreeCashFlow), f.FreeCashFlow != nil
	default:
		return 0, false
	}
}

func derefOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// canonicalizeOp folds the above/below spelling into the comparison
// operators, per the redesign flag requiring one canonical spelling rather
// than two code paths honoring the same meaning.
func canonicalizeOp(op catalog.Operator) catalog.Operator {
	switch op {
	case "above":
		return catalog.OpGT
	case "below":
		return catalog.OpLT
	default:
		return op
	}
}

func (e *Evaluator) evalFundamental(sub store.AlertSubscription, bundle store.DataBundle) (Result, error) {
	if bundle.Fundamentals == nil {
		return Result{Triggered: false, Reason: "no fundamentals available"}, nil
	}
	var cond fundamentalCondition
	if err := json.Unmarshal(sub.Condition, &cond); err != nil {
		return Result{}, fmt.Errorf("evaluator: fundamental condition: %w", err)
	}
	if _, ok := e.cat.Resolve(cond.Metric); !ok {
		return Result{}, fmt.Errorf("evaluator: fundamental condition: metric %q not in catalog", cond.Metric)
	}

	value, ok := fundamentalMetricValue(bundle.Fundamentals, cond.Metric)
	if !ok {
		return Result{Triggered: false, Reason: fmt.Sprintf("metric %q not available", cond.Metric)}, nil
	}

	op := canonicalizeOp(cond.Op)
	observed := decimal.NewFromFloat(value)
	threshold := decimal.NewFromFloat(cond.Value)
	triggered, err := compareDecimal(op, observed, threshold)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Triggered: triggered,
		Reason:    fmt.Sprintf("%s %s %s %v", cond.Metric, observed.String(), op, cond.Value),
		Payload:   map[string]any{"metric": cond.Metric, "value": value, "threshold": cond.Value, "op": op},
	}, nil
}

func (e *Evaluator) evalEvent(sub store.AlertSubscription, bundle store.DataBundle) (Result, error) {
	if bundle.Fundamentals == nil {
		return Result{Triggered: false, Reason: "no fundamentals available"}, nil
	}
	var cond eventCondition
	if err := json.Unmarshal(sub.Condition, &cond); err != nil {
		return Result{}, fmt.Errorf("evaluator: event condition: %w", err)
	}

	now := time.Now()
	switch cond.EventType {
	case "earnings_date":
		d := bundle.Fundamentals.EarningsDate
		if d == nil {
			return Result{Triggered: false, Reason: "no earnings date available"}, nil
		}
		inFuture := d.After(now)
		within := d.Before(now.Add(time.Duration(cond.DaysBefore) * 24 * time.Hour))
		triggered := inFuture && within
		return Result{
			Triggered: triggered,
			Reason:    fmt.Sprintf("earnings_date %s within %d days of now", d.Format("2006-01-02"), cond.DaysBefore),
			Payload:   map[string]any{"earnings_date": d, "days_before": cond.DaysBefore},
		}, nil
	case "buyback_announced":
		d := bundle.Fundamentals.BuybackAnnouncedDate
		if d == nil {
			return Result{Triggered: false, Reason: "no buyback announcement available"}, nil
		}
		inPast := d.Before(now)
		within := d.After(now.Add(-time.Duration(cond.DaysLookback) * 24 * time.Hour))
		triggered := inPast && within
		return Result{
			Triggered: triggered,
			Reason:    fmt.Sprintf("buyback_announced %s within %d days lookback", d.Format("2006-01-02"), cond.DaysLookback),
			Payload:   map[string]any{"buyback_announced_date": d, "days_lookback": cond.DaysLookback},
		}, nil
	default:
		return Result{}, fmt.Errorf("evaluator: event condition: unknown event_type %q", cond.EventType)
	}
}

func (e *Evaluator) evalTechnical(sub store.AlertSubscription, bundle store.DataBundle) (Result, error) {
	if bundle.Quote == nil {
		return Result{Triggered: false, Reason: "no quote available"}, nil
	}
	var cond technicalCondition
	if err := json.Unmarshal(sub.Condition, &cond); err != nil {
		return Result{}, fmt.Errorf("evaluator: technical condition: %w", err)
	}

	var observedPtr *float64
	switch cond.Indicator {
	case "rsi":
		observedPtr = bundle.Quote.RSI
	case "sma50":
		observedPtr = bundle.Quote.SMA50
	case "sma200":
		observedPtr = bundle.Quote.SMA200
	default:
		return Result{}, fmt.Errorf("evaluator: technical condition: unknown indicator %q", cond.Indicator)
	}
	if observedPtr == nil {
		return Result{Triggered: false, Reason: fmt.Sprintf("indicator %q not available", cond.Indicator)}, nil
	}

	op := canonicalizeOp(cond.Op)
	observed := decimal.NewFromFloat(*observedPtr)
	threshold := decimal.NewFromFloat(cond.Value)
	triggered, err := compareDecimal(op, observed, threshold)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Triggered: triggered,
		Reason:    fmt.Sprintf("%s %s %s %v", cond.Indicator, observed.String(), op, cond.Value),
		Payload:   map[string]any{"indicator": cond.Indicator, "value": *observedPtr, "threshold": cond.Value, "op": op},
	}, nil
}

// evalCustomDSL delegates to the shared Compiler, narrowing the universe
// to sub.Ticker (spec §4.5 custom_dsl). A tickerless custom_dsl alert is
// rejected with an error.
func (e *Evaluator) evalCustomDSL(ctx context.Context, sub store.AlertSubscription) (Result, error) {
	if sub.Ticker == nil || *sub.Ticker == "" {
		return Result{}, fmt.Errorf("evaluator: custom_dsl alert %q has no ticker to narrow against", sub.ID)
	}
	var cond customDSLCondition
	if err := json.Unmarshal(sub.Condition, &cond); err != nil {
		return Result{}, fmt.Errorf("evaluator: custom_dsl condition: %w", err)
	}

	rule, err := screenql.ParseRule([]byte(fmt.Sprintf(`{"filter":%s}`, string(cond.Filter))))
	if err != nil {
		return Result{}, fmt.Errorf("evaluator: custom_dsl condition did not parse: %w", err)
	}
	rule.Limit = 1

	if res := e.val.Validate(rule); !res.OK() {
		return Result{}, fmt.Errorf("evaluator: custom_dsl condition failed validation: %v", res.Errors)
	}

	compiled, err := e.comp.Compile(rule)
	if err != nil {
		return Result{}, fmt.Errorf("evaluator: custom_dsl compile: %w", err)
	}

	// Narrow the screen's universe to the subscription's single instrument
	// by wrapping the compiled query rather than threading "ticker" through
	// the DSL tree; ticker is the compiler's join key, not a catalog field,
	// so it has no DSL-level representation to validate against.
	narrowedSQL := fmt.Sprintf("SELECT * FROM (%s) screened WHERE screened.ticker = $%d", compiled.SQL, len(compiled.Args)+1)
	args := append(append([]any{}, compiled.Args...), *sub.Ticker)

	rows, err := e.store.RunScreen(ctx, narrowedSQL, args)
	if err != nil {
		return Result{}, fmt.Errorf("evaluator: custom_dsl execution: %w", err)
	}

	triggered := len(rows) > 0
	return Result{
		Triggered: triggered,
		Reason:    fmt.Sprintf("custom screen matched %d row(s) for %s", len(rows), *sub.Ticker),
		Payload:   map[string]any{"matched_rows": len(rows)},
	}, nil
}
