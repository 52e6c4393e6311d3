package catalog

// ptr is a small helper for building *float64 range bounds inline.
func ptr(f float64) *float64 { return &f }

var (
	comparisonAndRange = []Operator{OpLT, OpGT, OpLE, OpGE, OpEQ, OpNE, OpBetween, OpIn, OpNotIn}
	comparisonOnly     = []Operator{OpLT, OpGT, OpLE, OpGE, OpEQ, OpNE, OpBetween}
	equalityOnly       = []Operator{OpEQ, OpNE, OpIn, OpNotIn}
	numericWithTrend   = append(append([]Operator{}, comparisonAndRange...), OpIncreasing, OpDecreasing, OpStable)
	presenceOnly       = []Operator{OpExists}
)

// Default builds the static financial-instrument field catalog this repo
// ships with. Grounded in the teacher's internal/store.SeedCatalog, which
// similarly hardcodes a fixed seed data set at process start, and in the
// table naming from spec §6.3 (instruments, fundamentals, price history,
// debt profile, cash flow, analyst estimates).
func Default() (*Catalog, error) {
	return Load([]Field{
		// --- Identity (instruments table, not time-series) ---
		{
			Name: "sector", Kind: KindString, Scale: ScaleUnit, Displayable: true,
			Source:           Source{Table: "instruments", Column: "sector"},
			AllowedOperators: equalityOnly,
			Aliases:          []string{"sector"},
		},
		{
			Name: "industry", Kind: KindString, Scale: ScaleUnit, Displayable: true,
			Source:           Source{Table: "instruments", Column: "industry"},
			AllowedOperators: equalityOnly,
			Aliases:          []string{"industry"},
		},
		{
			Name: "exchange", Kind: KindString, Scale: ScaleUnit, Displayable: true,
			Source:           Source{Table: "instruments", Column: "exchange"},
			AllowedOperators: equalityOnly,
			Aliases:          []string{"exchange", "listed on"},
		},
		{
			Name: "market_cap", Kind: KindNumeric, Scale: ScaleUnit, Displayable: true,
			Source:           Source{Table: "instruments", Column: "market_cap"},
			AllowedOperators: comparisonAndRange,
			ValueRange:       &Range{Min: ptr(0)},
			Aliases:          []string{"market cap", "marketcap", "market capitalization"},
		},

		// --- Fundamentals (time-series, alias fq, keyed by (ticker, id DESC)) ---
		{
			Name: "pe_ratio", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "pe_ratio"},
			AllowedOperators: numericWithTrend,
			ValueRange:       &Range{Min: ptr(-1000), Max: ptr(1000)},
			Aliases:          []string{"pe", "pe ratio", "p/e", "price to earnings"},
		},
		{
			Name: "eps", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "eps"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"eps", "earnings per share"},
		},
		{
			Name: "net_income", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "net_income"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"net income", "earnings", "profit"},
		},
		{
			Name: "revenue", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "revenue"},
			AllowedOperators: numericWithTrend,
			GrowthSibling:    "revenue_growth_yoy",
			Aliases:          []string{"revenue", "sales", "turnover"},
		},
		{
			Name: "revenue_growth_yoy", Kind: KindPercentage, Scale: ScaleFraction, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "revenue_growth_yoy"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"revenue growth", "sales growth", "revenue growth yoy"},
		},
		{
			Name: "roe", Kind: KindPercentage, Scale: ScaleFraction, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "roe"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"roe", "return on equity"},
		},
		{
			Name: "dividend_yield", Kind: KindPercentage, Scale: ScaleFraction, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "fundamentals", Column: "dividend_yield"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"dividend yield", "yield"},
		},
		{
			Name: "total_debt", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true,
			Source:           Source{Table: "fundamentals", Column: "total_debt"},
			AllowedOperators: numericWithTrend,
			ValueRange:       &Range{Min: ptr(0)},
			Aliases:          []string{"total debt", "debt"},
		},
		{
			Name: "free_cash_flow", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true,
			Source:           Source{Table: "fundamentals", Column: "free_cash_flow"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"free cash flow", "fcf"},
		},
		{
			Name: "debt_to_fcf", Kind: KindNumeric, Scale: ScaleUnit, Displayable: true,
			Source: Source{
				Table:   "fundamentals",
				Derived: "total_debt / NULLIF(free_cash_flow, 0)",
				Guarded: []string{"free_cash_flow"},
			},
			AllowedOperators: comparisonAndRange,
			Aliases:          []string{"debt to fcf", "debt to free cash flow", "debt/fcf"},
		},
		{
			Name: "buyback_date", Kind: KindDate, Scale: ScaleUnit,
			Source:           Source{Table: "fundamentals", Column: "buyback_announced_date"},
			AllowedOperators: presenceOnly,
			Aliases:          []string{"buyback", "share buyback", "buyback announced"},
		},
		{
			Name: "earnings_date", Kind: KindDate, Scale: ScaleUnit,
			Source:           Source{Table: "fundamentals", Column: "earnings_date"},
			AllowedOperators: presenceOnly,
			Aliases:          []string{"earnings date", "next earnings"},
		},

		// --- Price history (time-series, alias ph, keyed by (ticker, time DESC)) ---
		{
			Name: "price", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "close"},
			AllowedOperators: numericWithTrend,
			ValueRange:       &Range{Min: ptr(0)},
			Aliases:          []string{"price", "current price", "close", "closing price"},
		},
		{
			Name: "rsi", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "rsi"},
			AllowedOperators: numericWithTrend,
			ValueRange:       &Range{Min: ptr(0), Max: ptr(100)},
			Aliases:          []string{"rsi", "relative strength index"},
		},
		{
			Name: "sma_50", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "sma50"},
			AllowedOperators: comparisonAndRange,
			Aliases:          []string{"sma50", "50 day moving average", "50-day sma"},
		},
		{
			Name: "sma_200", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "sma200"},
			AllowedOperators: comparisonAndRange,
			Aliases:          []string{"sma200", "200 day moving average", "200-day sma"},
		},
		{
			Name: "change_percent_1d", Kind: KindPercentage, Scale: ScaleFraction, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "change_percent_1d"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"1 day change", "daily change"},
		},
		{
			Name: "change_percent_1w", Kind: KindPercentage, Scale: ScaleFraction, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "change_percent_1w"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"1 week change", "weekly change"},
		},
		{
			Name: "change_percent_1m", Kind: KindPercentage, Scale: ScaleFraction, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "prices", Column: "change_percent_1m"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"1 month change", "monthly change"},
		},

		// --- Debt profile (time-series, alias dp) ---
		{
			Name: "debt_to_equity", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "debt_profile", Column: "debt_to_equity"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"debt to equity", "debt/equity", "d/e"},
		},
		{
			Name: "interest_coverage", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "debt_profile", Column: "interest_coverage"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"interest coverage"},
		},

		// --- Cash flow (time-series, alias cf) ---
		{
			Name: "operating_cash_flow", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "cash_flow", Column: "operating_cash_flow"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"operating cash flow", "ocf"},
		},
		{
			Name: "capex", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "cash_flow", Column: "capex"},
			AllowedOperators: numericWithTrend,
			Aliases:          []string{"capex", "capital expenditure"},
		},

		// --- Analyst estimates (time-series, alias ae, keyed by (ticker, estimate_date DESC)) ---
		{
			Name: "price_target_avg", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "analyst_estimates", Column: "price_target_avg"},
			AllowedOperators: comparisonAndRange,
			Aliases:          []string{"analyst target", "price target", "target price"},
		},
		{
			Name: "analyst_rating_avg", Kind: KindNumeric, Scale: ScaleUnit, TimeSeries: true, Displayable: true,
			Source:           Source{Table: "analyst_estimates", Column: "rating_avg"},
			AllowedOperators: comparisonAndRange,
			Aliases:          []string{"analyst rating"},
		},
	})
}
