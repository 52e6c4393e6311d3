// Package screenql is the in-memory representation of a validated screen:
// the DSL tree described in spec §3.2. It is a closed, tagged-variant
// structure (And | Or | Not | Cond) following the teacher's approach to its
// own DSL (internal/hf-investor/dsl/types.go), which also models a fixed set
// of node "verbs" rather than an open inheritance hierarchy.
package screenql

import (
	"encoding/json"
	"fmt"

	"screenforge/internal/catalog"
)

// MaxNestingDepth is the default §3.2 nesting-depth ceiling; the configured
// value in internal/config can override it (spec §6.5 compiler.max_nesting_depth).
const MaxNestingDepth = 5

// MinLimit and MaxLimit bound Rule.Limit (spec §3.2).
const (
	MinLimit = 1
	MaxLimit = 1000
)

// Node is the sealed interface implemented by And, Or, Not, and Cond. The
// switch in every visitor (Validator, Compiler) must be exhaustive over
// these four cases; there is no fifth case by design (spec §9).
type Node interface {
	isNode()
}

// And requires every child to hold. Children must be non-empty.
type And struct {
	Children []Node
}

// Or requires at least one child to hold. Children must be non-empty.
type Or struct {
	Children []Node
}

// Not negates its single child.
type Not struct {
	Child Node
}

// Cond is a leaf condition against one catalog field.
type Cond struct {
	Field        string
	Operator     catalog.Operator
	Value        any
	Period       *Period
	NullHandling *NullHandling
	ValueIsField bool // when true, Value is itself a catalog field name
}

func (And) isNode()  {}
func (Or) isNode()   {}
func (Not) isNode()  {}
func (Cond) isNode() {}

// Period qualifies a condition on a time-series field with a historical
// window and an aggregation mode (spec §3.4).
type Period struct {
	Type        catalog.PeriodType
	N           int
	Aggregation catalog.Aggregation
}

// NullHandling controls how a condition treats a null underlying value
// (spec §4.4.5).
type NullHandling struct {
	Strategy catalog.NullStrategy
	Default  any
}

// Sort controls the compiled query's ORDER BY clause (spec §3.2).
type Sort struct {
	Field string
	Order string // "asc" | "desc"
}

// Rule is the top-level screen: the parsed form of a request body
// (spec §3.2, §6.2).
type Rule struct {
	Meta   map[string]any
	Filter Node
	Sort   *Sort
	Limit  int
}

// --- JSON wire format ---
//
// Each node is encoded as an object with exactly one of the keys "and",
// "or", "not", or the Cond fields directly. This mirrors how the teacher
// encodes its own tagged Step/Verb union as a discriminated JSON shape
// (internal/hf-investor/dsl/types.go's Step{Verb, Params}).

type wireRule struct {
	Meta   map[string]any  `json:"meta,omitempty"`
	Filter json.RawMessage `json:"filter"`
	Sort   *wireSort       `json:"sort,omitempty"`
	Limit  *int            `json:"limit,omitempty"`
}

type wireSort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

type wireNode struct {
	And []json.RawMessage `json:"and,omitempty"`
	Or  []json.RawMessage `json:"or,omitempty"`
	Not json.RawMessage   `json:"not,omitempty"`

	Field        string          `json:"field,omitempty"`
	Operator     string          `json:"operator,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
	Period       *wirePeriod     `json:"period,omitempty"`
	NullHandling *wireNullH      `json:"null_handling,omitempty"`
	ValueIsField bool            `json:"value_is_field,omitempty"`
}

type wirePeriod struct {
	Type        string `json:"type"`
	N           int    `json:"n"`
	Aggregation string `json:"aggregation,omitempty"`
}

type wireNullH struct {
	Strategy string `json:"strategy,omitempty"`
	Default  any    `json:"default,omitempty"`
}

// ParseRule deserializes a JSON DSL document into a Rule. It performs no
// validation beyond structural JSON shape; the degenerate empty filter
// `{"filter":{}}` parses to a Rule with Filter == And{} (zero children),
// which the Validator accepts at the root as the always-true filter and the
// Compiler renders as `WHERE TRUE`; an empty `and` below the root is rejected
// (see internal/validator).
func ParseRule(data []byte) (*Rule, error) {
	var wr wireRule
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, fmt.Errorf("screenql: invalid rule JSON: %w", err)
	}

	var filter Node
	if len(wr.Filter) > 0 {
		n, err := parseNode(wr.Filter)
		if err != nil {
			return nil, err
		}
		filter = n
	} else {
		filter = And{}
	}

	r := &Rule{Meta: wr.Meta, Filter: filter}
	if wr.Sort != nil {
		r.Sort = &Sort{Field: wr.Sort.Field, Order: wr.Sort.Order}
	}
	if wr.Limit != nil {
		r.Limit = *wr.Limit
	}
	return r, nil
}

func parseNode(data []byte) (Node, error) {
	var wn wireNode
	if err := json.Unmarshal(data, &wn); err != nil {
		return nil, fmt.Errorf("screenql: invalid node JSON: %w", err)
	}

	switch {
	case wn.And != nil:
		children := make([]Node, 0, len(wn.And))
		for _, raw := range wn.And {
			c, err := parseNode(raw)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return And{Children: children}, nil

	case wn.Or != nil:
		children := make([]Node, 0, len(wn.Or))
		for _, raw := range wn.Or {
			c, err := parseNode(raw)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return Or{Children: children}, nil

	case len(wn.Not) > 0:
		child, err := parseNode(wn.Not)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil

	case wn.Field != "":
		cond := Cond{
			Field:        wn.Field,
			Operator:     catalog.Operator(wn.Operator),
			ValueIsField: wn.ValueIsField,
		}
		if len(wn.Value) > 0 {
			var v any
			if err := json.Unmarshal(wn.Value, &v); err != nil {
				return nil, fmt.Errorf("screenql: invalid value for field %q: %w", wn.Field, err)
			}
			cond.Value = v
		}
		if wn.Period != nil {
			cond.Period = &Period{
				Type:        catalog.PeriodType(wn.Period.Type),
				N:           wn.Period.N,
				Aggregation: catalog.Aggregation(wn.Period.Aggregation),
			}
		}
		if wn.NullHandling != nil {
			cond.NullHandling = &NullHandling{
				Strategy: catalog.NullStrategy(wn.NullHandling.Strategy),
				Default:  wn.NullHandling.Default,
			}
		}
		return cond, nil

	default:
		// The degenerate `{}` node: treated as an always-true And with no
		// children, matching the Translator's "never rejects" contract.
		return And{}, nil
	}
}

// MarshalJSON renders a Rule back to the §6.2 wire format, the inverse of
// ParseRule, so a Rule can be echoed in an API response (spec §6.1
// "query.dsl") or logged as compact JSON rather than Go's default
// exported-field struct dump.
func (r Rule) MarshalJSON() ([]byte, error) {
	filterRaw, err := marshalNode(r.Filter)
	if err != nil {
		return nil, err
	}
	wr := wireRule{Meta: r.Meta, Filter: filterRaw}
	if r.Sort != nil {
		wr.Sort = &wireSort{Field: r.Sort.Field, Order: r.Sort.Order}
	}
	if r.Limit != 0 {
		limit := r.Limit
		wr.Limit = &limit
	}
	return json.Marshal(wr)
}

func marshalNode(n Node) (json.RawMessage, error) {
	switch t := n.(type) {
	case And:
		children, err := marshalChildren(t.Children)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.Marshal(wireNode{And: children})
	case Or:
		children, err := marshalChildren(t.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireNode{Or: children})
	case Not:
		child, err := marshalNode(t.Child)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireNode{Not: child})
	case Cond:
		return marshalCond(t)
	default:
		return nil, fmt.Errorf("screenql: unrecognized node type %T", n)
	}
}

func marshalChildren(children []Node) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(children))
	for _, c := range children {
		raw, err := marshalNode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func marshalCond(c Cond) (json.RawMessage, error) {
	wn := wireNode{
		Field:        c.Field,
		Operator:     string(c.Operator),
		ValueIsField: c.ValueIsField,
	}
	if c.Value != nil {
		raw, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		wn.Value = raw
	}
	if c.Period != nil {
		wn.Period = &wirePeriod{
			Type:        string(c.Period.Type),
			N:           c.Period.N,
			Aggregation: string(c.Period.Aggregation),
		}
	}
	if c.NullHandling != nil {
		wn.NullHandling = &wireNullH{
			Strategy: string(c.NullHandling.Strategy),
			Default:  c.NullHandling.Default,
		}
	}
	return json.Marshal(wn)
}

// Depth returns the nesting depth of a node tree, used by the Validator's
// structural check (spec §3.2 "nesting depth <= 5"). A leaf Cond has depth 1.
func Depth(n Node) int {
	switch v := n.(type) {
	case And:
		return 1 + maxChildDepth(v.Children)
	case Or:
		return 1 + maxChildDepth(v.Children)
	case Not:
		return 1 + Depth(v.Child)
	case Cond:
		return 1
	default:
		return 0
	}
}

func maxChildDepth(children []Node) int {
	max := 0
	for _, c := range children {
		if d := Depth(c); d > max {
			max = d
		}
	}
	return max
}
