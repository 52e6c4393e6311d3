package compiler

import (
	"fmt"
	"regexp"

	"screenforge/internal/catalog"
	"screenforge/internal/screenql"
)

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

var derivedFormulaStopwords = map[string]bool{
	"NULLIF": true,
	"NULL":   true,
}

// quartersPerYear approximates a last_n_years period window over a
// quarterly-granularity table (fundamentals, debt_profile, cash_flow,
// analyst_estimates); prices is daily and does not use this multiplier.
const quartersPerYear = 4

// windowRowLimit converts a Period's logical window into the row count the
// correlated subquery should fetch, given the table's actual sampling
// granularity.
func windowRowLimit(p *screenql.Period, table string) int {
	if p.Type == catalog.PeriodLastNYears && table != "prices" {
		return p.N * quartersPerYear
	}
	return p.N
}

// compilePeriodCond implements spec §4.4.4's period/aggregation compilation:
// all -> NOT EXISTS over the inverted comparison, any -> EXISTS over the
// plain comparison, avg/sum/min/max -> aggregate-then-compare, trend ->
// compare the most recent row against the oldest row in the window.
func (c *Compiler) compilePeriodCond(cond screenql.Cond, f catalog.Field) (string, []any, error) {
	if f.IsDerived() {
		return "", nil, fmt.Errorf("field %q is derived and cannot carry a period", cond.Field)
	}
	table := f.Source.Table
	winAlias := tableAlias[table] + "_w"
	rec := recencyOf(table)
	limit := windowRowLimit(cond.Period, table)

	agg := cond.Period.Aggregation
	if agg == "" {
		agg = catalog.AggAll
	}

	switch agg {
	case catalog.AggAll, catalog.AggAny:
		invOp := cond.Operator
		verb := "EXISTS"
		if agg == catalog.AggAll {
			inv, ok := catalog.InvertComparison(cond.Operator)
			if !ok {
				return "", nil, fmt.Errorf("operator %q cannot be inverted for an \"all\" aggregation", cond.Operator)
			}
			invOp = inv
			verb = "NOT EXISTS"
		}
		// Restrict to the last N non-null rows first, then test the
		// (possibly inverted) comparison only within that window — never
		// let the comparison itself narrow which rows count toward N. N is
		// pushed as a placeholder, not spliced into the SQL text (spec
		// §4.4.4 "each period subquery parameter (value, N) is pushed into
		// params in positional order").
		rawAlias := winAlias + "_raw"
		windowSQL := fmt.Sprintf(
			"(SELECT %s FROM %s %s WHERE %s.ticker = i.ticker AND %s.%s IS NOT NULL ORDER BY %s.%s DESC LIMIT ?) %s",
			f.Source.Column, table, rawAlias, rawAlias, rawAlias, f.Source.Column, rawAlias, rec, winAlias,
		)
		cmpSQL, cmpArgs, err := buildComparison(fmt.Sprintf("%s.%s", winAlias, f.Source.Column), invOp, cond.Value)
		if err != nil {
			return "", nil, err
		}
		sub := fmt.Sprintf("%s (SELECT 1 FROM %s WHERE %s)", verb, windowSQL, cmpSQL)
		args := append([]any{limit}, cmpArgs...)
		return sub, args, nil

	case catalog.AggAvg, catalog.AggSum, catalog.AggMin, catalog.AggMax:
		fn := map[catalog.Aggregation]string{
			catalog.AggAvg: "AVG", catalog.AggSum: "SUM",
			catalog.AggMin: "MIN", catalog.AggMax: "MAX",
		}[agg]
		windowExpr := fmt.Sprintf(
			"(SELECT %s(%s) FROM (SELECT %s FROM %s %s WHERE %s.ticker = i.ticker ORDER BY %s.%s DESC LIMIT ?) %s_agg)",
			fn, f.Source.Column, f.Source.Column, table, winAlias, winAlias, winAlias, rec, winAlias,
		)
		cmpSQL, cmpArgs, err := buildComparison(windowExpr, cond.Operator, cond.Value)
		if err != nil {
			return "", nil, err
		}
		args := append([]any{limit}, cmpArgs...)
		return cmpSQL, args, nil

	case catalog.AggTrend:
		return c.compileTrendCond(cond, f, table, winAlias, rec, limit)

	case catalog.AggLatest:
		return buildComparison(fmt.Sprintf("%s.%s", tableAlias[table], f.Source.Column), cond.Operator, cond.Value)

	default:
		return "", nil, fmt.Errorf("unsupported period aggregation %q", agg)
	}
}

// compileTrendCond compares the most recent row in the window against the
// oldest row in the window, per the requested trend operator.
func (c *Compiler) compileTrendCond(cond screenql.Cond, f catalog.Field, table, winAlias, rec string, limit int) (string, []any, error) {
	latest := fmt.Sprintf(
		"(SELECT %s FROM %s %s WHERE %s.ticker = i.ticker ORDER BY %s.%s DESC LIMIT 1)",
		f.Source.Column, table, winAlias, winAlias, winAlias, rec,
	)
	oldest := fmt.Sprintf(
		"(SELECT %s FROM %s %s WHERE %s.ticker = i.ticker ORDER BY %s.%s DESC LIMIT 1 OFFSET ?)",
		f.Source.Column, table, winAlias, winAlias, winAlias, rec,
	)
	args := []any{limit - 1}

	switch cond.Operator {
	case catalog.OpIncreasing:
		return fmt.Sprintf("%s > %s", latest, oldest), args, nil
	case catalog.OpDecreasing:
		return fmt.Sprintf("%s < %s", latest, oldest), args, nil
	case catalog.OpStable:
		return fmt.Sprintf("ABS(%s - %s) <= 0.01 * ABS(%s)", latest, oldest, oldest), append(args, args[0]), nil
	default:
		return "", nil, fmt.Errorf("operator %q is not a trend operator", cond.Operator)
	}
}
