// Package compiler turns a validated screenql.Rule into a parameterized SQL
// query (spec §4.4). No value that passed through the Translator or an
// operator ever reaches the SQL text itself — every scalar is bound as a
// placeholder argument, and every identifier (table, column, alias) comes
// from the closed Field Catalog, never from user input.
//
// The join shape (LEFT JOIN LATERAL against a fixed alias per domain table,
// folded into a COALESCE fallback projection) is grounded in the pack's
// other_examples screener.go buildQuery, which joins a latest-price
// subquery and wraps columns in COALESCE for the same "freshest non-null
// reading" semantics. The predicate-tree-to-Sqlizer compilation is grounded
// in the pack's other_examples criteria_translator.go, which walks a closed
// operator enum into github.com/Masterminds/squirrel expressions.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"screenforge/internal/catalog"
	"screenforge/internal/screenql"
)

// tableAlias is the closed alias set every compiled query uses, regardless
// of which fields a particular rule references (spec §6.3).
var tableAlias = map[string]string{
	"instruments":       "i",
	"fundamentals":      "fq",
	"prices":            "ph",
	"debt_profile":      "dp",
	"cash_flow":         "cf",
	"analyst_estimates": "ae",
}

// recencyColumn names the column each joined table orders its "latest row"
// window by. Price history is keyed by observation time and analyst
// estimates by estimate date; every other domain table is keyed by an
// autoincrementing id reflecting ingest order.
var recencyColumn = map[string]string{
	"prices":            "time",
	"analyst_estimates": "estimate_date",
}

func recencyOf(table string) string {
	if c, ok := recencyColumn[table]; ok {
		return c
	}
	return "id"
}

// Compiled is a ready-to-execute parameterized query.
type Compiled struct {
	SQL  string
	Args []any
}

type Compiler struct {
	cat          *catalog.Catalog
	defaultLimit int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDefaultLimit overrides the fallback row cap applied when a rule
// carries no explicit limit (spec §6.5 compiler.default_limit).
func WithDefaultLimit(n int) Option {
	return func(c *Compiler) { c.defaultLimit = n }
}

func New(cat *catalog.Catalog, opts ...Option) *Compiler {
	c := &Compiler{cat: cat, defaultLimit: 100}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile assumes rule has already passed internal/validator.Validate; it
// does not re-check semantic legality, only translates structure to SQL.
func (c *Compiler) Compile(rule *screenql.Rule) (*Compiled, error) {
	where, args, err := c.compileNode(rule.Filter)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}

	var b strings.Builder
	b.WriteString("SELECT DISTINCT ")
	b.WriteString(c.projection())
	b.WriteString("\nFROM instruments i\n")
	b.WriteString(c.joinClauses())
	b.WriteString("WHERE ")
	b.WriteString(where)

	if rule.Sort != nil {
		f, ok := c.cat.Resolve(rule.Sort.Field)
		if !ok {
			return nil, fmt.Errorf("compiler: sort field %q not in catalog", rule.Sort.Field)
		}
		order := "ASC"
		if strings.EqualFold(rule.Sort.Order, "desc") {
			order = "DESC"
		}
		b.WriteString(fmt.Sprintf("\nORDER BY %s %s", c.projectionAlias(f), order))
	} else {
		// Default sort per spec §4.4 "Output shape": market cap desc, nulls last.
		b.WriteString("\nORDER BY i.market_cap DESC NULLS LAST")
	}

	limit := rule.Limit
	if limit <= 0 {
		limit = c.defaultLimit
	}
	b.WriteString("\nLIMIT ?")
	args = append(args, limit)

	// lib/pq expects $1, $2, ... positional parameters rather than
	// squirrel's default "?" placeholder style.
	finalSQL, err := sq.Dollar.ReplacePlaceholders(b.String())
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}

	return &Compiled{SQL: finalSQL, Args: args}, nil
}

// joinClauses emits the fixed LATERAL joins every compiled query carries,
// one per domain table, each resolving to the instrument's most recent row.
func (c *Compiler) joinClauses() string {
	tables := []string{"fundamentals", "prices", "debt_profile", "cash_flow", "analyst_estimates"}
	var b strings.Builder
	for _, table := range tables {
		alias := tableAlias[table]
		rec := recencyOf(table)
		fmt.Fprintf(&b, "LEFT JOIN LATERAL (\n  SELECT * FROM %s %s_l WHERE %s_l.ticker = i.ticker ORDER BY %s_l.%s DESC LIMIT 1\n) %s ON TRUE\n",
			table, alias, alias, alias, rec, alias)
	}
	return b.String()
}

// projection builds the fixed SELECT list: instrument identity columns plus
// every displayable catalog field outside the instruments table. Column
// fields are wrapped in the latest-non-null COALESCE fallback described in
// spec §4.4.2; derived fields are projected as their substituted formula.
func (c *Compiler) projection() string {
	cols := []string{"i.ticker", "i.sector", "i.industry", "i.exchange", "i.market_cap"}
	fields := c.cat.All()
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	for _, f := range fields {
		if !f.Displayable || f.Source.Table == "instruments" {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", c.projectionExpr(f), f.Name))
	}
	return strings.Join(cols, ",\n  ")
}

func (c *Compiler) projectionAlias(f catalog.Field) string {
	if f.Source.Table == "instruments" {
		return "i." + f.Source.Column
	}
	return f.Name
}

// projectionExpr returns the SELECT-list expression for a displayable
// field: the joined lateral alias's column, falling back via COALESCE to a
// correlated scalar subquery for the most recent non-null reading when the
// latest row itself carries a null for that column. A derived field's
// expression is its substituted formula, without that fallback.
func (c *Compiler) projectionExpr(f catalog.Field) string {
	if f.IsDerived() {
		return c.substituteDerived(f.Source.Derived)
	}
	alias := tableAlias[f.Source.Table]
	col := fmt.Sprintf("%s.%s", alias, f.Source.Column)
	return fmt.Sprintf("COALESCE(%s, %s)", col, c.latestNonNullSubquery(f))
}

// latestNonNullSubquery is the correlated scalar subquery used anywhere a
// sparse time-series column needs its most recent non-null reading rather
// than whatever the LATERAL-joined "latest row" happens to carry: the
// SELECT-list COALESCE fallback (projectionExpr) and bare time-series
// predicates with no period (compileCond), both per spec §4.4.3.
func (c *Compiler) latestNonNullSubquery(f catalog.Field) string {
	alias := tableAlias[f.Source.Table]
	return fmt.Sprintf(
		"(SELECT %s_f.%s FROM %s %s_f WHERE %s_f.ticker = i.ticker AND %s_f.%s IS NOT NULL ORDER BY %s_f.%s DESC LIMIT 1)",
		alias, f.Source.Column, f.Source.Table, alias, alias, alias, f.Source.Column, alias, recencyOf(f.Source.Table),
	)
}

func (c *Compiler) substituteDerived(formula string) string {
	return identifierRe.ReplaceAllStringFunc(formula, func(tok string) string {
		if derivedFormulaStopwords[strings.ToUpper(tok)] {
			return tok
		}
		if f, ok := c.cat.Resolve(tok); ok && !f.IsDerived() {
			alias := tableAlias[f.Source.Table]
			return fmt.Sprintf("%s.%s", alias, f.Source.Column)
		}
		return tok
	})
}

// compileNode compiles a DSL node into a WHERE fragment and its positional
// arguments, using squirrel's Sqlizer composition for the boolean
// connectives and hand-built fragments for the financial-domain leaves
// (period windows, derived-field substitution) squirrel has no vocabulary
// for.
func (c *Compiler) compileNode(n screenql.Node) (string, []any, error) {
	switch t := n.(type) {
	case screenql.And:
		if len(t.Children) == 0 {
			return "TRUE", nil, nil
		}
		return c.compileConjunction(t.Children, "AND")
	case screenql.Or:
		if len(t.Children) == 0 {
			return "FALSE", nil, nil
		}
		return c.compileConjunction(t.Children, "OR")
	case screenql.Not:
		sql, args, err := c.compileNode(t.Child)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT (%s)", sql), args, nil
	case screenql.Cond:
		return c.compileCond(t)
	default:
		return "", nil, fmt.Errorf("unrecognized node type %T", n)
	}
}

func (c *Compiler) compileConjunction(children []screenql.Node, joiner string) (string, []any, error) {
	parts := make([]string, 0, len(children))
	var args []any
	for _, child := range children {
		sql, childArgs, err := c.compileNode(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		args = append(args, childArgs...)
	}
	return strings.Join(parts, " "+joiner+" "), args, nil
}

func (c *Compiler) compileCond(cond screenql.Cond) (string, []any, error) {
	f, ok := c.cat.Resolve(cond.Field)
	if !ok {
		return "", nil, fmt.Errorf("field %q not in catalog", cond.Field)
	}

	if cond.Period != nil {
		return c.compilePeriodCond(cond, f)
	}

	col := c.leafColumnRef(f)
	// Time-series columns are sparse: the LATERAL-projected "latest" row can
	// carry a null for this column even when an earlier row has a value.
	// Predicate truth must never depend on that coincidence, so a bare
	// time-series comparison (no period) always goes through the
	// latest-non-null correlated subquery instead of the joined alias
	// (spec §4.4.3).
	if f.TimeSeries && !f.IsDerived() {
		col = c.latestNonNullSubquery(f)
	}

	var prefixArgs []any
	if cond.NullHandling != nil {
		switch cond.NullHandling.Strategy {
		case catalog.NullUseDefault:
			sql, args, err := sq.Expr(fmt.Sprintf("COALESCE(%s, ?)", col), cond.NullHandling.Default).ToSql()
			if err != nil {
				return "", nil, err
			}
			col = "(" + sql + ")"
			prefixArgs = args
		case catalog.NullUseLatest:
			if !f.IsDerived() {
				col = c.latestNonNullSubquery(f)
			}
		case catalog.NullInterpolate:
			return "", nil, fmt.Errorf("compiler: null_handling strategy \"interpolate\" is NOT_IMPLEMENTED")
		case catalog.NullExclude, catalog.NullFail, "":
			// standard SQL three-valued logic already fails the predicate on null
		}
	}

	if cond.Operator == catalog.OpExists {
		want, _ := cond.Value.(bool)
		if want {
			return col + " IS NOT NULL", prefixArgs, nil
		}
		return col + " IS NULL", prefixArgs, nil
	}

	if cond.ValueIsField {
		rf, ok := c.cat.Resolve(cond.Value.(string))
		if !ok {
			return "", nil, fmt.Errorf("comparison field %q not in catalog", cond.Value)
		}
		rhs := c.leafColumnRef(rf)
		if rf.TimeSeries && !rf.IsDerived() {
			rhs = c.latestNonNullSubquery(rf)
		}
		return fmt.Sprintf("%s %s %s", col, string(cond.Operator), rhs), prefixArgs, nil
	}

	sql, args, err := buildComparison(col, cond.Operator, cond.Value)
	if err != nil {
		return "", nil, err
	}
	return sql, append(prefixArgs, args...), nil
}

func (c *Compiler) leafColumnRef(f catalog.Field) string {
	if f.IsDerived() {
		return "(" + c.substituteDerived(f.Source.Derived) + ")"
	}
	return fmt.Sprintf("%s.%s", tableAlias[f.Source.Table], f.Source.Column)
}

// buildComparison renders a single scalar comparison as a parameterized
// fragment. colExpr is always a closed-vocabulary SQL identifier or
// subquery produced by this package, never caller-controlled text.
func buildComparison(colExpr string, op catalog.Operator, value any) (string, []any, error) {
	switch op {
	case catalog.OpBetween:
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return "", nil, fmt.Errorf("between requires two values")
		}
		return fmt.Sprintf("%s BETWEEN ? AND ?", colExpr), []any{pair[0], pair[1]}, nil
	case catalog.OpIn, catalog.OpNotIn:
		items, ok := value.([]any)
		if !ok || len(items) == 0 {
			return "", nil, fmt.Errorf("in/not_in requires a non-empty list")
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(items)), ",")
		verb := "IN"
		if op == catalog.OpNotIn {
			verb = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", colExpr, verb, placeholders), items, nil
	default:
		sqlOp, ok := scalarOperatorSQL[op]
		if !ok {
			return "", nil, fmt.Errorf("operator %q cannot be compiled as a scalar comparison", op)
		}
		return fmt.Sprintf("%s %s ?", colExpr, sqlOp), []any{value}, nil
	}
}

var scalarOperatorSQL = map[catalog.Operator]string{
	catalog.OpLT: "<",
	catalog.OpGT: ">",
	catalog.OpLE: "<=",
	catalog.OpGE: ">=",
	catalog.OpEQ: "=",
	catalog.OpNE: "!=",
}
