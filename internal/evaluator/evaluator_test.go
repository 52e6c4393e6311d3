package evaluator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/evaluator"
	"screenforge/internal/store"
	"screenforge/internal/validator"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func ptr(f float64) *float64 { return &f }

type stubRunner struct {
	rows []map[string]any
	err  error
}

func (s stubRunner) RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error) {
	return s.rows, s.err
}

func newEvaluator(t *testing.T, runner evaluator.Runner) *evaluator.Evaluator {
	t.Helper()
	cat := mustCatalog(t)
	val := validator.New(cat)
	comp := compiler.New(cat)
	return evaluator.New(cat, val, comp, runner)
}

func TestEvaluate_PriceThresholdTriggers(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a1",
		Kind:      store.AlertPriceThreshold,
		Condition: []byte(`{"op":"<","value":200}`),
	}
	bundle := store.DataBundle{Quote: &store.Quote{Ticker: "AAPL", Close: 150}}

	res, err := e.Evaluate(context.Background(), sub, bundle)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
}

func TestEvaluate_PriceThresholdNoQuoteNeverTriggers(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a1",
		Kind:      store.AlertPriceThreshold,
		Condition: []byte(`{"op":"<","value":200}`),
	}

	res, err := e.Evaluate(context.Background(), sub, store.DataBundle{})
	require.NoError(t, err)
	assert.False(t, res.Triggered)
}

func TestEvaluate_PriceChangeUsesRequestedPeriod(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a2",
		Kind:      store.AlertPriceChange,
		Condition: []byte(`{"op":">","value":5,"period":"1w"}`),
	}
	bundle := store.DataBundle{Quote: &store.Quote{
		Ticker: "AAPL", ChangePercent1D: ptr(1), ChangePercent1W: ptr(8),
	}}

	res, err := e.Evaluate(context.Background(), sub, bundle)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
}

func TestEvaluate_FundamentalMetricMustBeInCatalog(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a3",
		Kind:      store.AlertFundamental,
		Condition: []byte(`{"metric":"not_a_real_metric","op":"<","value":20}`),
	}
	bundle := store.DataBundle{Fundamentals: &store.Fundamentals{Ticker: "AAPL", PERatio: ptr(18)}}

	_, err := e.Evaluate(context.Background(), sub, bundle)
	assert.Error(t, err)
}

func TestEvaluate_FundamentalCanonicalizesAboveBelow(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a4",
		Kind:      store.AlertFundamental,
		Condition: []byte(`{"metric":"pe_ratio","op":"below","value":20}`),
	}
	bundle := store.DataBundle{Fundamentals: &store.Fundamentals{Ticker: "AAPL", PERatio: ptr(18)}}

	res, err := e.Evaluate(context.Background(), sub, bundle)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
}

func TestEvaluate_EventEarningsWithinWindow(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	soon := time.Now().Add(3 * 24 * time.Hour)
	sub := store.AlertSubscription{
		ID:        "a5",
		Kind:      store.AlertEvent,
		Condition: []byte(`{"event_type":"earnings_date","days_before":7}`),
	}
	bundle := store.DataBundle{Fundamentals: &store.Fundamentals{Ticker: "AAPL", EarningsDate: &soon}}

	res, err := e.Evaluate(context.Background(), sub, bundle)
	require.NoError(t, err)
	assert.True(t, res.Triggered)
}

func TestEvaluate_EventEarningsOutsideWindowDoesNotTrigger(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	later := time.Now().Add(30 * 24 * time.Hour)
	sub := store.AlertSubscription{
		ID:        "a6",
		Kind:      store.AlertEvent,
		Condition: []byte(`{"event_type":"earnings_date","days_before":7}`),
	}
	bundle := store.DataBundle{Fundamentals: &store.Fundamentals{Ticker: "AAPL", EarningsDate: &later}}

	res, err := e.Evaluate(context.Background(), sub, bundle)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
}

func TestEvaluate_TechnicalIndicatorMissingDoesNotTrigger(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a7",
		Kind:      store.AlertTechnical,
		Condition: []byte(`{"indicator":"rsi","op":">","value":70}`),
	}
	bundle := store.DataBundle{Quote: &store.Quote{Ticker: "AAPL", Close: 100}}

	res, err := e.Evaluate(context.Background(), sub, bundle)
	require.NoError(t, err)
	assert.False(t, res.Triggered)
}

func TestEvaluate_CustomDSLNarrowsToTickerAndChecksNonEmpty(t *testing.T) {
	ticker := "AAPL"
	runner := stubRunner{rows: []map[string]any{{"ticker": "AAPL"}}}
	e := newEvaluator(t, runner)
	sub := store.AlertSubscription{
		ID:        "a8",
		Ticker:    &ticker,
		Kind:      store.AlertCustomDSL,
		Condition: []byte(`{"filter":{"field":"pe_ratio","operator":"<","value":20}}`),
	}

	res, err := e.Evaluate(context.Background(), sub, store.DataBundle{})
	require.NoError(t, err)
	assert.True(t, res.Triggered)
}

func TestEvaluate_CustomDSLWithoutTickerErrors(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	sub := store.AlertSubscription{
		ID:        "a9",
		Kind:      store.AlertCustomDSL,
		Condition: []byte(`{"filter":{"field":"pe_ratio","operator":"<","value":20}}`),
	}

	_, err := e.Evaluate(context.Background(), sub, store.DataBundle{})
	assert.Error(t, err)
}

func TestEvaluate_AllNilBundleNeverTriggers(t *testing.T) {
	e := newEvaluator(t, stubRunner{})
	for _, kind := range []store.AlertKind{
		store.AlertPriceThreshold, store.AlertPriceChange, store.AlertFundamental,
		store.AlertEvent, store.AlertTechnical,
	} {
		sub := store.AlertSubscription{ID: "x", Kind: kind, Condition: []byte(`{}`)}
		res, err := e.Evaluate(context.Background(), sub, store.DataBundle{})
		require.NoError(t, err)
		assert.False(t, res.Triggered, "kind %s should not trigger on an all-nil bundle", kind)
	}
}
