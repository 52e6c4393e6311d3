// Package catalog holds the field catalog: the process-wide, read-only
// enumeration of attributes the screener DSL is allowed to reference.
//
// This mirrors the teacher's data-dictionary pattern in
// internal/dictionary/attribute.go, where a rich struct describes a pillar
// of screenable/queryable data and is loaded once at process start.
package catalog

import "fmt"

// Kind is the scalar type of a field's value.
type Kind string

const (
	KindNumeric    Kind = "numeric"
	KindPercentage Kind = "percentage"
	KindFraction   Kind = "fraction"
	KindString     Kind = "string"
	KindDate       Kind = "date"
	KindBoolean    Kind = "boolean"
)

// Scale describes how a numeric field's magnitude should be interpreted for
// auto-normalization purposes (see spec §3.1 and the Translator's percent
// rescaling step).
type Scale string

const (
	ScaleUnit     Scale = "unit"
	ScaleFraction Scale = "fraction" // 0..1 represents 0..100%
)

// Range gives an optional sanity bound for a numeric field.
type Range struct {
	Min *float64
	Max *float64
}

// Source describes where a field's value physically lives: either a plain
// table/column binding, or a derived formula referencing other (non-derived)
// catalog field names. Exactly one of Column or Derived is set.
type Source struct {
	Table   string // logical table name, e.g. "fundamentals"
	Column  string // physical column name, empty when Derived is set
	Derived string // formula referencing other catalog field names, e.g. "total_debt / free_cash_flow"
	// Guarded lists the catalog field names in the formula whose
	// denominator position requires a non-zero/non-negative guard. Used by
	// the Validator's MetricSafety check (spec §4.3 phase 8).
	Guarded []string
}

// Field is one screenable/queryable catalog entry.
type Field struct {
	Name             string
	Kind             Kind
	Source           Source
	TimeSeries       bool
	AllowedOperators []Operator
	ValueRange       *Range
	Scale            Scale
	Aliases          []string
	// GrowthSibling names the field the Translator substitutes when it sees
	// "increasing/growing <field>" with no explicit comparison (spec §4.1 step 5).
	GrowthSibling string
	// Displayable marks fields eligible for the compiler's fixed SELECT
	// projection (spec §4.4.2); every catalog field is queryable, not every
	// field is projected.
	Displayable bool
}

// IsDerived reports whether the field's value is computed from a formula
// rather than read directly from a column.
func (f Field) IsDerived() bool { return f.Source.Derived != "" }

// Catalog is the immutable, process-wide field registry. Build it once via
// Load and pass the returned value by pointer into every other component;
// nothing mutates it after construction.
type Catalog struct {
	fields      map[string]Field
	aliasIndex  map[string]string // lowercased alias/phrase -> canonical field name
	orderedKeys []string          // for deterministic iteration (tests, docs)
}

// Load builds a Catalog from a fixed set of Field definitions, validating the
// invariants from spec §3.1: unique names, derived fields referencing only
// non-derived fields transitively, and every time-series field declaring a
// monotonic table.
func Load(fields []Field) (*Catalog, error) {
	c := &Catalog{
		fields:     make(map[string]Field, len(fields)),
		aliasIndex: make(map[string]string),
	}

	for _, f := range fields {
		if _, exists := c.fields[f.Name]; exists {
			return nil, fmt.Errorf("catalog: duplicate field name %q", f.Name)
		}
		c.fields[f.Name] = f
		c.orderedKeys = append(c.orderedKeys, f.Name)

		for _, alias := range f.Aliases {
			key := normalizeAliasKey(alias)
			if key == "" {
				continue
			}
			if existing, ok := c.aliasIndex[key]; ok && existing != f.Name {
				return nil, fmt.Errorf("catalog: alias %q claimed by both %q and %q", alias, existing, f.Name)
			}
			c.aliasIndex[key] = f.Name
		}
	}

	for _, f := range fields {
		if f.IsDerived() {
			for _, ref := range dependenciesOf(f) {
				dep, ok := c.fields[ref]
				if !ok {
					return nil, fmt.Errorf("catalog: derived field %q references unknown field %q", f.Name, ref)
				}
				if dep.IsDerived() {
					return nil, fmt.Errorf("catalog: derived field %q references derived field %q (must reference non-derived entries transitively)", f.Name, ref)
				}
			}
		}
		if f.TimeSeries && f.Source.Table == "" {
			return nil, fmt.Errorf("catalog: time-series field %q has no backing table", f.Name)
		}
	}

	return c, nil
}

// Resolve looks up a field by its canonical name.
func (c *Catalog) Resolve(name string) (Field, bool) {
	f, ok := c.fields[name]
	return f, ok
}

// ResolveAlias looks up a field by an alternative phrasing, used only by the
// Translator (spec §4.2). Matching is exact against registered aliases after
// lowercasing; callers needing substring/longest-match behavior implement it
// on top of this using All().
func (c *Catalog) ResolveAlias(phrase string) (Field, bool) {
	name, ok := c.aliasIndex[normalizeAliasKey(phrase)]
	if !ok {
		return Field{}, false
	}
	f, ok := c.fields[name]
	return f, ok
}

// Allows reports whether operator op is legal for the named field's kind.
func (c *Catalog) Allows(fieldName string, op Operator) bool {
	f, ok := c.fields[fieldName]
	if !ok {
		return false
	}
	for _, allowed := range f.AllowedOperators {
		if allowed == op {
			return true
		}
	}
	return false
}

// DerivedFormula returns the formula string for a derived field.
func (c *Catalog) DerivedFormula(fieldName string) (string, bool) {
	f, ok := c.fields[fieldName]
	if !ok || !f.IsDerived() {
		return "", false
	}
	return f.Source.Derived, true
}

// All returns every field in declaration order. The slice is a copy-safe
// read; callers must not mutate Field values in place (Field is small and
// passed by value from this method already).
func (c *Catalog) All() []Field {
	out := make([]Field, 0, len(c.orderedKeys))
	for _, name := range c.orderedKeys {
		out = append(out, c.fields[name])
	}
	return out
}

func normalizeAliasKey(s string) string {
	return lowerTrim(s)
}
