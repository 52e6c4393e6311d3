package catalog

// Operator is one member of the DSL's whitelisted operator set (spec §3.3).
type Operator string

const (
	OpLT Operator = "<"
	OpGT Operator = ">"
	OpLE Operator = "<="
	OpGE Operator = ">="
	OpEQ Operator = "="
	OpNE Operator = "!="

	OpBetween Operator = "between"

	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"

	OpExists Operator = "exists"

	OpIncreasing Operator = "increasing"
	OpDecreasing Operator = "decreasing"
	OpStable     Operator = "stable"
)

// ComparisonOperators are the plain scalar comparisons, used by the
// Validator's logical-conflict interval intersection (spec §4.3 phase 7) and
// by the Compiler's "all" aggregation inversion (spec §4.4.4).
var ComparisonOperators = []Operator{OpLT, OpGT, OpLE, OpGE, OpEQ, OpNE}

// IsComparison reports whether op is one of the plain scalar comparisons.
func IsComparison(op Operator) bool {
	for _, c := range ComparisonOperators {
		if c == op {
			return true
		}
	}
	return false
}

// InvertComparison returns the logical inverse of a comparison operator, used
// when compiling the "all" period aggregation as
// NOT EXISTS(... WHERE col INV_OP $v) (spec §4.4.4).
func InvertComparison(op Operator) (Operator, bool) {
	switch op {
	case OpLT:
		return OpGE, true
	case OpGT:
		return OpLE, true
	case OpLE:
		return OpGT, true
	case OpGE:
		return OpLT, true
	case OpEQ:
		return OpNE, true
	case OpNE:
		return OpEQ, true
	default:
		return "", false
	}
}

// TrendOperators are the time-series-only trend comparisons.
var TrendOperators = []Operator{OpIncreasing, OpDecreasing, OpStable}

// IsTrend reports whether op is a trend operator.
func IsTrend(op Operator) bool {
	for _, t := range TrendOperators {
		if t == op {
			return true
		}
	}
	return false
}

// PeriodType enumerates the time-window shapes a period condition can use
// (spec §3.4).
type PeriodType string

const (
	PeriodLastNQuarters    PeriodType = "last_n_quarters"
	PeriodLastNYears       PeriodType = "last_n_years"
	PeriodTrailing12Months PeriodType = "trailing_12_months"
	PeriodQoQ              PeriodType = "quarter_over_quarter"
	PeriodYoY              PeriodType = "year_over_year"
)

// ValidPeriodTypes is the closed set of period types the Validator accepts.
var ValidPeriodTypes = map[PeriodType]bool{
	PeriodLastNQuarters:    true,
	PeriodLastNYears:       true,
	PeriodTrailing12Months: true,
	PeriodQoQ:              true,
	PeriodYoY:              true,
}

// Aggregation enumerates how multiple period rows combine into a truth value
// or scalar (spec §3.4).
type Aggregation string

const (
	AggAll    Aggregation = "all"
	AggAny    Aggregation = "any"
	AggAvg    Aggregation = "avg"
	AggSum    Aggregation = "sum"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
	AggTrend  Aggregation = "trend"
	AggLatest Aggregation = "latest"
)

// ValidAggregations is the closed set of aggregations the Validator accepts.
var ValidAggregations = map[Aggregation]bool{
	AggAll:    true,
	AggAny:    true,
	AggAvg:    true,
	AggSum:    true,
	AggMin:    true,
	AggMax:    true,
	AggTrend:  true,
	AggLatest: true,
}

const (
	MinPeriodN = 1
	MaxPeriodN = 20
)

// NullStrategy enumerates how a condition handles a null underlying value
// (spec §4.4.5).
type NullStrategy string

const (
	NullExclude     NullStrategy = "exclude"
	NullFail        NullStrategy = "fail"
	NullUseDefault  NullStrategy = "use_default"
	NullUseLatest   NullStrategy = "use_latest"
	NullInterpolate NullStrategy = "interpolate"
)
