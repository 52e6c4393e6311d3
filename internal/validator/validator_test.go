package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenforge/internal/catalog"
	"screenforge/internal/screenql"
	"screenforge/internal/validator"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func TestValidate_ValidSimpleRule(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "pe_ratio", Operator: catalog.OpLT, Value: 15.0}}
	res := v.Validate(rule)
	assert.True(t, res.OK(), "errors: %v", res.Errors)
	assert.Equal(t, 100, rule.Limit, "limit should default to 100")
}

func TestValidate_UnknownField(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "not_a_field", Operator: catalog.OpLT, Value: 1.0}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "field", res.Errors[0].Kind)
}

func TestValidate_DisallowedOperator(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "sector", Operator: catalog.OpLT, Value: "Technology"}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "operator", res.Errors[0].Kind)
}

func TestValidate_BetweenRequiresLowLessThanHigh(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "rsi", Operator: catalog.OpBetween, Value: []any{70.0, 30.0}}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "value", res.Errors[0].Kind)
}

func TestValidate_TrendOperatorRequiresPeriod(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "revenue", Operator: catalog.OpIncreasing}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "period", res.Errors[0].Kind)
}

func TestValidate_LogicalConflict(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.And{Children: []screenql.Node{
		screenql.Cond{Field: "pe_ratio", Operator: catalog.OpLT, Value: 5.0},
		screenql.Cond{Field: "pe_ratio", Operator: catalog.OpGT, Value: 10.0},
	}}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "logic", res.Errors[0].Kind)
}

func TestValidate_DerivedMetricRequiresGuard(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "debt_to_fcf", Operator: catalog.OpLT, Value: 3.0}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "derived_safety", res.Errors[0].Kind)
}

func TestValidate_DerivedMetricWithGuardPasses(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.And{Children: []screenql.Node{
		screenql.Cond{Field: "debt_to_fcf", Operator: catalog.OpLT, Value: 3.0},
		screenql.Cond{Field: "free_cash_flow", Operator: catalog.OpGT, Value: 0.0},
	}}}
	res := v.Validate(rule)
	assert.True(t, res.OK(), "errors: %v", res.Errors)
}

func TestValidate_RangeSanity(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "rsi", Operator: catalog.OpGT, Value: 150.0}}
	res := v.Validate(rule)
	// Range sanity is advisory: an implausible but in-type value warns, it
	// does not block the rule.
	assert.True(t, res.OK(), "errors: %v", res.Errors)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, "range", res.Warnings[0].Kind)
}

func TestValidate_EmptyFilterNormalizesToAlwaysTrue(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.And{}}
	res := v.Validate(rule)
	assert.True(t, res.OK())
	and, ok := rule.Filter.(screenql.And)
	require.True(t, ok)
	assert.Empty(t, and.Children)
}

func TestValidate_CrossKindComparisonIsAnError(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{
		Field: "price", Operator: catalog.OpLT, Value: "sector", ValueIsField: true,
	}}
	res := v.Validate(rule)
	// value_is_field comparisons across incompatible catalog kinds fail
	// value shape, a blocking phase, not just an ambiguity warning.
	require.False(t, res.OK())
	assert.Equal(t, "value", res.Errors[0].Kind)
}

func TestValidate_StrictModePromotesAmbiguityToError(t *testing.T) {
	v := validator.New(mustCatalog(t), validator.WithStrictMode(true))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "price", Operator: catalog.OpLT, Value: 100.0}}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "ambiguity", res.Errors[0].Kind)
}

func TestValidate_SortOnNonSortableFieldFails(t *testing.T) {
	v := validator.New(mustCatalog(t))
	rule := &screenql.Rule{
		Filter: screenql.Cond{Field: "pe_ratio", Operator: catalog.OpLT, Value: 15.0},
		Sort:   &screenql.Sort{Field: "buyback_date", Order: "asc"},
	}
	res := v.Validate(rule)
	require.False(t, res.OK())
	assert.Equal(t, "meta", res.Errors[0].Kind)
}
