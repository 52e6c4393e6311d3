package translator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenforge/internal/catalog"
	"screenforge/internal/screenql"
	"screenforge/internal/translator"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func TestTranslate_SimpleComparison(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "PE ratio less than 15")
	require.NoError(t, err)

	cond, ok := rule.Filter.(screenql.Cond)
	require.True(t, ok, "expected a single leaf condition, got %T", rule.Filter)
	assert.Equal(t, "pe_ratio", cond.Field)
	assert.Equal(t, catalog.OpLT, cond.Operator)
	assert.Equal(t, 15.0, cond.Value)
}

func TestTranslate_MetadataAndComparison(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "technology stocks with PE ratio below 20")
	require.NoError(t, err)

	and, ok := rule.Filter.(screenql.And)
	require.True(t, ok, "expected an And of metadata + comparison, got %T", rule.Filter)
	require.Len(t, and.Children, 2)

	var sawSector, sawPE bool
	for _, c := range and.Children {
		cond, ok := c.(screenql.Cond)
		require.True(t, ok)
		switch cond.Field {
		case "sector":
			sawSector = true
			assert.Equal(t, "Technology", cond.Value)
		case "pe_ratio":
			sawPE = true
			assert.Equal(t, catalog.OpLT, cond.Operator)
		}
	}
	assert.True(t, sawSector)
	assert.True(t, sawPE)
}

func TestTranslate_PositiveEarningsOverPeriod(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "positive net income for the last 4 quarters")
	require.NoError(t, err)

	cond, ok := rule.Filter.(screenql.Cond)
	require.True(t, ok)
	assert.Equal(t, "net_income", cond.Field)
	assert.Equal(t, catalog.OpGT, cond.Operator)
	assert.Equal(t, 0.0, cond.Value)
	require.NotNil(t, cond.Period)
	assert.Equal(t, catalog.PeriodLastNQuarters, cond.Period.Type)
	assert.Equal(t, 4, cond.Period.N)
}

func TestTranslate_CrossFieldComparison(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "current price below analyst target")
	require.NoError(t, err)

	cond, ok := rule.Filter.(screenql.Cond)
	require.True(t, ok)
	assert.Equal(t, "price", cond.Field)
	assert.Equal(t, catalog.OpLT, cond.Operator)
	assert.True(t, cond.ValueIsField)
	assert.Equal(t, "price_target_avg", cond.Value)
}

func TestTranslate_EventPredicate(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "recent share buyback")
	require.NoError(t, err)

	cond, ok := rule.Filter.(screenql.Cond)
	require.True(t, ok)
	assert.Equal(t, "buyback_date", cond.Field)
	assert.Equal(t, catalog.OpExists, cond.Operator)
}

func TestTranslate_EmptyQueryYieldsAlwaysTrue(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "")
	require.NoError(t, err)

	and, ok := rule.Filter.(screenql.And)
	require.True(t, ok)
	assert.Empty(t, and.Children)
}

func TestTranslate_OrAcrossSegments(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "pe ratio below 10 or dividend yield above 5%")
	require.NoError(t, err)

	or, ok := rule.Filter.(screenql.Or)
	require.True(t, ok, "expected an Or of two branches, got %T", rule.Filter)
	require.Len(t, or.Children, 2)
}

func TestTranslate_PercentRescale(t *testing.T) {
	tr := translator.New(mustCatalog(t))
	rule, err := tr.Translate(context.Background(), "dividend yield above 5%")
	require.NoError(t, err)

	cond, ok := rule.Filter.(screenql.Cond)
	require.True(t, ok)
	assert.Equal(t, "dividend_yield", cond.Field)
	assert.InDelta(t, 0.05, cond.Value.(float64), 1e-9)
}
