package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/screenql"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

func TestCompile_SimpleComparisonUsesPositionalPlaceholder(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "pe_ratio", Operator: catalog.OpLT, Value: 15.0}, Limit: 50}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	// pe_ratio is a sparse time-series column: predicate truth must go
	// through the latest-non-null correlated subquery, never the bare
	// LATERAL-joined alias.
	assert.Contains(t, out.SQL, "fq_f.pe_ratio IS NOT NULL")
	assert.Contains(t, out.SQL, ") < $1")
	assert.Contains(t, out.SQL, "LIMIT $2")
	assert.Equal(t, []any{15.0, 50}, out.Args)
}

func TestCompile_NoLiteralValuesLeakIntoSQL(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.And{Children: []screenql.Node{
		screenql.Cond{Field: "sector", Operator: catalog.OpEQ, Value: "Technology"},
		screenql.Cond{Field: "pe_ratio", Operator: catalog.OpLT, Value: 15.0},
	}}}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	assert.NotContains(t, out.SQL, "Technology")
	assert.NotContains(t, out.SQL, "15")
	assert.Equal(t, []any{"Technology", 15.0, 100}, out.Args)
}

func TestCompile_AllAggregationInvertsOperator(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{
		Field: "net_income", Operator: catalog.OpGT, Value: 0.0,
		Period: &screenql.Period{Type: catalog.PeriodLastNQuarters, N: 4, Aggregation: catalog.AggAll},
	}}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "NOT EXISTS")
	assert.Contains(t, out.SQL, "fq_w.net_income <= $2")
	// args must carry both the period window size (N=4) and the inverted
	// comparison value, in the order their placeholders appear in the SQL
	// text, followed by the trailing default row-cap limit.
	assert.Equal(t, []any{4, 0.0, 100}, out.Args)
}

func TestCompile_DerivedFieldSubstitutesFormula(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.And{Children: []screenql.Node{
		screenql.Cond{Field: "debt_to_fcf", Operator: catalog.OpLT, Value: 3.0},
		screenql.Cond{Field: "free_cash_flow", Operator: catalog.OpGT, Value: 0.0},
	}}}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "fq.total_debt")
	assert.Contains(t, out.SQL, "NULLIF(fq.free_cash_flow, 0)")
}

func TestCompile_CrossFieldComparisonHasNoPlaceholder(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{
		Field: "price", Operator: catalog.OpLT, Value: "price_target_avg", ValueIsField: true,
	}}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	// Both sides are sparse time-series columns, so both go through the
	// latest-non-null subquery rather than the bare joined alias.
	assert.Contains(t, out.SQL, "ph_f.close IS NOT NULL")
	assert.Contains(t, out.SQL, "ae_f.price_target_avg IS NOT NULL")
	assert.Equal(t, []any{100}, out.Args)
}

func TestCompile_EmptyFilterSelectsEverything(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.And{}, Limit: 100}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	assert.Contains(t, out.SQL, "WHERE TRUE")
	assert.Equal(t, []any{100}, out.Args)
}

func TestCompile_JoinsUseFixedAliases(t *testing.T) {
	c := compiler.New(mustCatalog(t))
	rule := &screenql.Rule{Filter: screenql.Cond{Field: "pe_ratio", Operator: catalog.OpLT, Value: 15.0}}
	out, err := c.Compile(rule)
	require.NoError(t, err)
	for _, alias := range []string{"fq", "ph", "dp", "cf", "ae"} {
		assert.Contains(t, out.SQL, ") "+alias+" ON TRUE")
	}
}
