// Package validator implements the DSL Validator (spec §4.3): an ordered
// sequence of structural, semantic, and safety checks over a parsed
// screenql.Rule. It never panics and mutates its input only to normalize
// defaults on success; it either returns a clean Result, or returns a Result
// carrying one RuleError per violation plus any non-fatal warnings.
//
// The per-field error shape — a plain, addressable message naming the
// offending path and the constraint it failed — is grounded in the
// teacher's own validation style (internal/hf-investor/dsl/types.go's
// Validate methods, which return errors.New("field: constraint") messages
// such as "legal_name: required" or "indicative_amount: must be > 0").
package validator

import (
	"fmt"
	"sort"
	"strings"

	"screenforge/internal/catalog"
	"screenforge/internal/screenql"
)

// RuleError is one validation failure or warning, addressable to a specific
// node path within the rule so a caller (translator retry loop, HTTP error
// body) can point a user at the offending clause.
type RuleError struct {
	Path       string
	Kind       string
	Message    string
	Suggestion string
}

func (e RuleError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result is the outcome of validating one rule. Errors is non-empty iff the
// rule must be rejected; Warnings never block compilation.
type Result struct {
	Errors   []RuleError
	Warnings []RuleError
}

// OK reports whether the rule may proceed to the Compiler.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Option configures a Validator.
type Option func(*Validator)

// WithStrictMode makes ambiguity warnings (phase 10) into hard errors,
// mirroring spec §6.5's validator.strict_mode configuration knob.
func WithStrictMode(strict bool) Option {
	return func(v *Validator) { v.strict = strict }
}

// WithMaxNestingDepth overrides the default structural depth ceiling.
func WithMaxNestingDepth(n int) Option {
	return func(v *Validator) { v.maxDepth = n }
}

type Validator struct {
	cat      *catalog.Catalog
	strict   bool
	maxDepth int
}

func New(cat *catalog.Catalog, opts ...Option) *Validator {
	v := &Validator{cat: cat, maxDepth: screenql.MaxNestingDepth}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every phase in order (spec §4.3) and, on success, normalizes
// Rule.Limit, the Rule.Sort order (lowercased) and an empty root filter in
// place.
func (v *Validator) Validate(rule *screenql.Rule) Result {
	var res Result

	res.Errors = append(res.Errors, v.checkStructural(rule.Filter, "filter")...)
	if len(res.Errors) > 0 {
		return res // a malformed tree makes every later phase meaningless
	}

	res.Errors = append(res.Errors, v.checkFieldValidity(rule.Filter, "filter")...)
	res.Errors = append(res.Errors, v.checkOperatorValidity(rule.Filter, "filter")...)
	res.Errors = append(res.Errors, v.checkValueShape(rule.Filter, "filter")...)
	// Range sanity is advisory (spec §4.3 phase 5: "warn, do not fail, on
	// implausible but in-type values"), so it feeds Warnings, not Errors.
	res.Warnings = append(res.Warnings, v.checkRangeSanity(rule.Filter, "filter")...)
	res.Errors = append(res.Errors, v.checkPeriodLegality(rule.Filter, "filter")...)
	res.Errors = append(res.Errors, v.checkLogicalConflicts(rule.Filter, "filter")...)
	res.Errors = append(res.Errors, v.checkDerivedMetricSafety(rule.Filter, "filter")...)
	res.Errors = append(res.Errors, v.checkMeta(rule)...)

	warnings := v.checkAmbiguity(rule.Filter, "filter")
	if v.strict {
		res.Errors = append(res.Errors, warnings...)
	} else {
		res.Warnings = append(res.Warnings, warnings...)
	}

	if len(res.Errors) == 0 {
		v.normalize(rule)
	}
	return res
}

func (v *Validator) normalize(rule *screenql.Rule) {
	if rule.Limit == 0 {
		rule.Limit = 100
	}
	if rule.Sort != nil {
		rule.Sort.Order = strings.ToLower(rule.Sort.Order)
	}
	if isEmptyAnd(rule.Filter) {
		rule.Filter = screenql.And{} // explicit "match everything" after normalization
	}
}

func isEmptyAnd(n screenql.Node) bool {
	and, ok := n.(screenql.And)
	return ok && len(and.Children) == 0
}

// --- Phase 1: structural ---

func (v *Validator) checkStructural(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	if depth := screenql.Depth(n); depth > v.maxDepth {
		errs = append(errs, RuleError{
			Path: path, Kind: "structural",
			Message:    fmt.Sprintf("nesting depth %d exceeds maximum %d", depth, v.maxDepth),
			Suggestion: "flatten nested and/or groups",
		})
	}

	switch t := n.(type) {
	case screenql.And:
		if len(t.Children) == 0 {
			// the degenerate always-true root is allowed only at the top
			if path != "filter" {
				errs = append(errs, RuleError{Path: path, Kind: "structural", Message: "and requires at least one child"})
			}
			return errs
		}
		for i, c := range t.Children {
			errs = append(errs, v.checkStructural(c, fmt.Sprintf("%s.and[%d]", path, i))...)
		}
	case screenql.Or:
		if len(t.Children) == 0 {
			errs = append(errs, RuleError{Path: path, Kind: "structural", Message: "or requires at least one child"})
			return errs
		}
		for i, c := range t.Children {
			errs = append(errs, v.checkStructural(c, fmt.Sprintf("%s.or[%d]", path, i))...)
		}
	case screenql.Not:
		if t.Child == nil {
			errs = append(errs, RuleError{Path: path, Kind: "structural", Message: "not requires exactly one child"})
			return errs
		}
		errs = append(errs, v.checkStructural(t.Child, path+".not")...)
	case screenql.Cond:
		if t.Field == "" {
			errs = append(errs, RuleError{Path: path, Kind: "structural", Message: "condition missing field"})
		}
	}
	return errs
}

// walk invokes fn on every Cond leaf, threading a readable path string.
func walk(n screenql.Node, path string, fn func(screenql.Cond, string)) {
	switch t := n.(type) {
	case screenql.And:
		for i, c := range t.Children {
			walk(c, fmt.Sprintf("%s.and[%d]", path, i), fn)
		}
	case screenql.Or:
		for i, c := range t.Children {
			walk(c, fmt.Sprintf("%s.or[%d]", path, i), fn)
		}
	case screenql.Not:
		walk(t.Child, path+".not", fn)
	case screenql.Cond:
		fn(t, path)
	}
}

// --- Phase 2: field validity ---

func (v *Validator) checkFieldValidity(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	walk(n, path, func(c screenql.Cond, p string) {
		if _, ok := v.cat.Resolve(c.Field); !ok {
			errs = append(errs, RuleError{
				Path: p, Kind: "field",
				Message:    fmt.Sprintf("unknown field %q", c.Field),
				Suggestion: "check the field catalog for the canonical name",
			})
			return
		}
		if c.ValueIsField {
			name, ok := c.Value.(string)
			if !ok {
				errs = append(errs, RuleError{Path: p, Kind: "field", Message: "value_is_field set but value is not a field name string"})
				return
			}
			if _, ok := v.cat.Resolve(name); !ok {
				errs = append(errs, RuleError{Path: p, Kind: "field", Message: fmt.Sprintf("unknown comparison field %q", name)})
			}
		}
	})
	return errs
}

// --- Phase 3: operator validity ---

func (v *Validator) checkOperatorValidity(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	walk(n, path, func(c screenql.Cond, p string) {
		f, ok := v.cat.Resolve(c.Field)
		if !ok {
			return // already reported by phase 2
		}
		if !v.cat.Allows(c.Field, c.Operator) {
			errs = append(errs, RuleError{
				Path: p, Kind: "operator",
				Message:    fmt.Sprintf("operator %q is not allowed on field %q", c.Operator, c.Field),
				Suggestion: fmt.Sprintf("allowed operators: %v", f.AllowedOperators),
			})
			return
		}
		if catalog.IsTrend(c.Operator) && !f.TimeSeries {
			errs = append(errs, RuleError{Path: p, Kind: "operator", Message: fmt.Sprintf("trend operator %q requires a time-series field", c.Operator)})
		}
	})
	return errs
}

// --- Phase 4: value shape ---

func (v *Validator) checkValueShape(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	walk(n, path, func(c screenql.Cond, p string) {
		switch c.Operator {
		case catalog.OpBetween:
			pair, ok := asSlice(c.Value)
			if !ok || len(pair) != 2 {
				errs = append(errs, RuleError{Path: p, Kind: "value", Message: "between requires exactly two values [low, high]"})
				return
			}
			lo, loOK := asFloat(pair[0])
			hi, hiOK := asFloat(pair[1])
			if !loOK || !hiOK {
				errs = append(errs, RuleError{Path: p, Kind: "value", Message: "between bounds must be numeric"})
				return
			}
			if lo >= hi {
				errs = append(errs, RuleError{Path: p, Kind: "value", Message: "between requires low < high"})
			}
		case catalog.OpIn, catalog.OpNotIn:
			items, ok := asSlice(c.Value)
			if !ok || len(items) == 0 {
				errs = append(errs, RuleError{Path: p, Kind: "value", Message: "in/not_in requires a non-empty array of values"})
			}
		case catalog.OpExists:
			if _, ok := c.Value.(bool); !ok {
				errs = append(errs, RuleError{Path: p, Kind: "value", Message: "exists requires a boolean value"})
			}
		case catalog.OpIncreasing, catalog.OpDecreasing, catalog.OpStable:
			// trend operators carry no comparison value
		default:
			if c.ValueIsField {
				name, ok := c.Value.(string)
				if !ok {
					return // already reported by phase 2
				}
				left, lok := v.cat.Resolve(c.Field)
				right, rok := v.cat.Resolve(name)
				if lok && rok && left.Kind != right.Kind {
					errs = append(errs, RuleError{
						Path: p, Kind: "value",
						Message:    fmt.Sprintf("comparing %q (%s) to %q (%s) requires compatible field kinds", c.Field, left.Kind, name, right.Kind),
						Suggestion: "compare fields of the same kind, or convert one side",
					})
				}
				return
			}
			f, ok := v.cat.Resolve(c.Field)
			if !ok {
				return
			}
			if !valueMatchesKind(c.Value, f.Kind) {
				errs = append(errs, RuleError{Path: p, Kind: "value", Message: fmt.Sprintf("value type does not match field kind %q", f.Kind)})
			}
		}
	})
	return errs
}

func valueMatchesKind(v any, k catalog.Kind) bool {
	switch k {
	case catalog.KindNumeric, catalog.KindPercentage, catalog.KindFraction:
		_, ok := asFloat(v)
		return ok
	case catalog.KindString, catalog.KindDate:
		_, ok := v.(string)
		return ok
	case catalog.KindBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// --- Phase 5: range sanity ---

func (v *Validator) checkRangeSanity(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	walk(n, path, func(c screenql.Cond, p string) {
		if c.ValueIsField {
			return
		}
		f, ok := v.cat.Resolve(c.Field)
		if !ok || f.ValueRange == nil {
			return
		}
		vals := valuesToCheck(c)
		for _, val := range vals {
			fv, ok := asFloat(val)
			if !ok {
				continue
			}
			if f.ValueRange.Min != nil && fv < *f.ValueRange.Min {
				errs = append(errs, RuleError{Path: p, Kind: "range", Message: fmt.Sprintf("%v is below the sane minimum %v for %q", fv, *f.ValueRange.Min, c.Field)})
			}
			if f.ValueRange.Max != nil && fv > *f.ValueRange.Max {
				errs = append(errs, RuleError{Path: p, Kind: "range", Message: fmt.Sprintf("%v is above the sane maximum %v for %q", fv, *f.ValueRange.Max, c.Field)})
			}
		}
	})
	return errs
}

func valuesToCheck(c screenql.Cond) []any {
	if items, ok := asSlice(c.Value); ok {
		return items
	}
	if c.Value == nil {
		return nil
	}
	return []any{c.Value}
}

// --- Phase 6: period legality ---

func (v *Validator) checkPeriodLegality(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	walk(n, path, func(c screenql.Cond, p string) {
		if c.Period == nil {
			if catalog.IsTrend(c.Operator) {
				errs = append(errs, RuleError{Path: p, Kind: "period", Message: "trend operator requires a period"})
			}
			return
		}
		f, ok := v.cat.Resolve(c.Field)
		if ok && !f.TimeSeries {
			errs = append(errs, RuleError{Path: p, Kind: "period", Message: fmt.Sprintf("field %q is not a time-series field and cannot carry a period", c.Field)})
		}
		if !catalog.ValidPeriodTypes[c.Period.Type] {
			errs = append(errs, RuleError{Path: p, Kind: "period", Message: fmt.Sprintf("unknown period type %q", c.Period.Type)})
		}
		if c.Period.N < catalog.MinPeriodN || c.Period.N > catalog.MaxPeriodN {
			errs = append(errs, RuleError{Path: p, Kind: "period", Message: fmt.Sprintf("period n=%d out of range [%d,%d]", c.Period.N, catalog.MinPeriodN, catalog.MaxPeriodN)})
		}
		if c.Period.Aggregation != "" && !catalog.ValidAggregations[c.Period.Aggregation] {
			errs = append(errs, RuleError{Path: p, Kind: "period", Message: fmt.Sprintf("unknown aggregation %q", c.Period.Aggregation)})
		}
		if (c.Period.Aggregation == catalog.AggAll || c.Period.Aggregation == catalog.AggAny) && !catalog.IsComparison(c.Operator) {
			errs = append(errs, RuleError{Path: p, Kind: "period", Message: fmt.Sprintf("aggregation %q requires a plain comparison operator", c.Period.Aggregation)})
		}
	})
	return errs
}

// --- Phase 7: logical conflict ---

// checkLogicalConflicts intersects the comparison intervals implied by
// sibling Cond leaves under the same And for the same field, flagging
// combinations that can never be satisfied (e.g. pe_ratio < 5 and pe_ratio > 10).
func (v *Validator) checkLogicalConflicts(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	switch t := n.(type) {
	case screenql.And:
		byField := make(map[string][]screenql.Cond)
		for _, c := range t.Children {
			if cond, ok := c.(screenql.Cond); ok && !cond.ValueIsField && catalog.IsComparison(cond.Operator) {
				byField[cond.Field] = append(byField[cond.Field], cond)
			}
		}
		for field, conds := range byField {
			if lo, hi, conflict := intersectInterval(conds); conflict {
				errs = append(errs, RuleError{
					Path: path, Kind: "logic",
					Message: fmt.Sprintf("conditions on %q can never both hold (effective range [%v, %v])", field, lo, hi),
				})
			}
		}
		for i, c := range t.Children {
			errs = append(errs, v.checkLogicalConflicts(c, fmt.Sprintf("%s.and[%d]", path, i))...)
		}
	case screenql.Or:
		for i, c := range t.Children {
			errs = append(errs, v.checkLogicalConflicts(c, fmt.Sprintf("%s.or[%d]", path, i))...)
		}
	case screenql.Not:
		errs = append(errs, v.checkLogicalConflicts(t.Child, path+".not")...)
	}
	return errs
}

func intersectInterval(conds []screenql.Cond) (lo, hi float64, conflict bool) {
	lo = negInf
	hi = posInf
	var loOpen, hiOpen bool // whether the bound itself is excluded (> or <)
	for _, c := range conds {
		fv, ok := asFloat(c.Value)
		if !ok {
			continue
		}
		switch c.Operator {
		case catalog.OpGT, catalog.OpGE:
			if fv > lo || (fv == lo && c.Operator == catalog.OpGT) {
				lo, loOpen = fv, c.Operator == catalog.OpGT
			}
		case catalog.OpLT, catalog.OpLE:
			if fv < hi || (fv == hi && c.Operator == catalog.OpLT) {
				hi, hiOpen = fv, c.Operator == catalog.OpLT
			}
		case catalog.OpEQ:
			if fv > lo {
				lo, loOpen = fv, false
			}
			if fv < hi {
				hi, hiOpen = fv, false
			}
		}
	}
	return lo, hi, lo > hi || (lo == hi && (loOpen || hiOpen))
}

const (
	posInf = 1e18
	negInf = -1e18
)

// --- Phase 8: derived-metric safety ---

// checkDerivedMetricSafety enforces MetricSafety (spec §4.3 phase 8): any
// condition referencing a derived field whose formula has a guarded
// denominator must coexist, in the same And branch, with a sibling
// condition on each guarded input field. Only the sibling's presence is
// checked; its operator and value are not inspected.
func (v *Validator) checkDerivedMetricSafety(n screenql.Node, path string) []RuleError {
	var errs []RuleError
	switch t := n.(type) {
	case screenql.And:
		var guardedConds []screenql.Cond
		siblingFields := make(map[string]bool)
		for _, c := range t.Children {
			if cond, ok := c.(screenql.Cond); ok {
				siblingFields[cond.Field] = true
				if f, ok := v.cat.Resolve(cond.Field); ok && f.IsDerived() && len(f.Source.Guarded) > 0 {
					guardedConds = append(guardedConds, cond)
				}
			}
		}
		for _, gc := range guardedConds {
			f, _ := v.cat.Resolve(gc.Field)
			for _, guarded := range f.Source.Guarded {
				if !siblingFields[guarded] {
					errs = append(errs, RuleError{
						Path: path, Kind: "derived_safety",
						Message:    fmt.Sprintf("derived field %q divides by %q without a guard condition on %q in the same clause", gc.Field, guarded, guarded),
						Suggestion: fmt.Sprintf("add %q > 0 alongside this condition", guarded),
					})
				}
			}
		}
		for i, c := range t.Children {
			errs = append(errs, v.checkDerivedMetricSafety(c, fmt.Sprintf("%s.and[%d]", path, i))...)
		}
	case screenql.Or:
		for i, c := range t.Children {
			errs = append(errs, v.checkDerivedMetricSafety(c, fmt.Sprintf("%s.or[%d]", path, i))...)
		}
	case screenql.Not:
		errs = append(errs, v.checkDerivedMetricSafety(t.Child, path+".not")...)
	case screenql.Cond:
		if f, ok := v.cat.Resolve(t.Field); ok && f.IsDerived() && len(f.Source.Guarded) > 0 {
			errs = append(errs, RuleError{
				Path: path, Kind: "derived_safety",
				Message: fmt.Sprintf("derived field %q used outside an and-group cannot carry its required guard on %v", t.Field, f.Source.Guarded),
			})
		}
	}
	return errs
}

// --- Phase 9: meta ---

func (v *Validator) checkMeta(rule *screenql.Rule) []RuleError {
	var errs []RuleError
	if rule.Limit != 0 && (rule.Limit < screenql.MinLimit || rule.Limit > screenql.MaxLimit) {
		errs = append(errs, RuleError{Path: "limit", Kind: "meta", Message: fmt.Sprintf("limit %d out of range [%d,%d]", rule.Limit, screenql.MinLimit, screenql.MaxLimit)})
	}
	if rule.Sort != nil {
		f, ok := v.cat.Resolve(rule.Sort.Field)
		if !ok {
			errs = append(errs, RuleError{Path: "sort.field", Kind: "meta", Message: fmt.Sprintf("unknown sort field %q", rule.Sort.Field)})
		} else if !f.Displayable {
			errs = append(errs, RuleError{Path: "sort.field", Kind: "meta", Message: fmt.Sprintf("field %q is not sortable", rule.Sort.Field)})
		}
		if order := strings.ToLower(rule.Sort.Order); order != "asc" && order != "desc" {
			errs = append(errs, RuleError{Path: "sort.order", Kind: "meta", Message: "order must be \"asc\" or \"desc\""})
		}
	}
	return errs
}

// likelyCoverageQuarters is the rough number of historical quarterly rows the
// data store is assumed to retain; a period requesting more than this is
// flagged as a DataAvailability warning rather than rejected (spec §4.3
// phase 10, §7 DataAvailability).
const likelyCoverageQuarters = 12

func (v *Validator) checkAmbiguity(n screenql.Node, path string) []RuleError {
	var warnings []RuleError
	walk(n, path, func(c screenql.Cond, p string) {
		f, ok := v.cat.Resolve(c.Field)
		if !ok {
			return
		}
		if f.TimeSeries && c.Period == nil && !catalog.IsTrend(c.Operator) {
			warnings = append(warnings, RuleError{
				Path: p, Kind: "ambiguity",
				Message:    fmt.Sprintf("time-series field %q used without a period compares against its latest non-null value", c.Field),
				Suggestion: "add a period (e.g. last_n_quarters) if you meant to look across history",
			})
		}
		if c.Period != nil {
			windowQuarters := c.Period.N
			if c.Period.Type == catalog.PeriodLastNYears {
				windowQuarters *= 4
			}
			if windowQuarters > likelyCoverageQuarters {
				warnings = append(warnings, RuleError{
					Path: p, Kind: "ambiguity",
					Message:    fmt.Sprintf("period n=%d on %q likely exceeds available historical coverage", c.Period.N, c.Field),
					Suggestion: "reduce n or confirm the data store retains this much history",
				})
			}
		}
	})
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Path < warnings[j].Path })
	return warnings
}
