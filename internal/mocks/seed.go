package mocks

import (
	"time"

	"screenforge/internal/store"
)

func f(v float64) *float64 { return &v }

// seedInstruments/seedQuotes/seedFundamentals are the built-in fallback used
// when no instruments.json fixture is present under the configured mock
// data path, so `--store mock` works out of the box without any fixtures on
// disk, the same way the teacher's internal/mocks ships a small built-in
// seed set for demoing the CLI.
var seedInstruments = []store.Instrument{
	{Ticker: "AAPL", Name: "Apple Inc.", Sector: "Technology", Industry: "Consumer Electronics", Exchange: "NASDAQ", MarketCap: 2_900_000_000_000},
	{Ticker: "MSFT", Name: "Microsoft Corp.", Sector: "Technology", Industry: "Software", Exchange: "NASDAQ", MarketCap: 3_100_000_000_000},
	{Ticker: "JPM", Name: "JPMorgan Chase & Co.", Sector: "Financials", Industry: "Diversified Banks", Exchange: "NYSE", MarketCap: 560_000_000_000},
	{Ticker: "XOM", Name: "Exxon Mobil Corp.", Sector: "Energy", Industry: "Integrated Oil & Gas", Exchange: "NYSE", MarketCap: 470_000_000_000},
	{Ticker: "PFE", Name: "Pfizer Inc.", Sector: "Healthcare", Industry: "Pharmaceuticals", Exchange: "NYSE", MarketCap: 150_000_000_000},
}

var seedQuotes = []store.Quote{
	{Ticker: "AAPL", Time: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC), Close: 228.50, RSI: f(58.2), SMA50: f(219.1), SMA200: f(201.4), ChangePercent1D: f(0.8), ChangePercent1W: f(2.1), ChangePercent1M: f(5.4)},
	{Ticker: "MSFT", Time: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC), Close: 465.10, RSI: f(62.7), SMA50: f(450.3), SMA200: f(420.9), ChangePercent1D: f(-0.3), ChangePercent1W: f(1.2), ChangePercent1M: f(3.9)},
	{Ticker: "JPM", Time: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC), Close: 212.40, RSI: f(49.5), SMA50: f(208.0), SMA200: f(195.5), ChangePercent1D: f(0.1), ChangePercent1W: f(-0.4), ChangePercent1M: f(2.0)},
	{Ticker: "XOM", Time: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC), Close: 118.75, RSI: f(41.3), SMA50: f(116.2), SMA200: f(112.8), ChangePercent1D: f(-1.1), ChangePercent1W: f(-2.3), ChangePercent1M: f(-0.5)},
	{Ticker: "PFE", Time: time.Date(2026, 7, 30, 16, 0, 0, 0, time.UTC), Close: 24.90, RSI: f(33.8), SMA50: f(26.1), SMA200: f(27.9), ChangePercent1D: f(-2.4), ChangePercent1W: f(-3.1), ChangePercent1M: f(-6.8)},
}

var seedFundamentals = []store.Fundamentals{
	{Ticker: "AAPL", ID: 1, PERatio: f(34.2), EPS: f(6.68), NetIncome: f(99_800_000_000), Revenue: f(391_000_000_000), RevenueGrowthYoY: f(6.1), ROE: f(147.2), DividendYield: f(0.4), TotalDebt: f(106_000_000_000), FreeCashFlow: f(105_000_000_000)},
	{Ticker: "MSFT", ID: 2, PERatio: f(36.8), EPS: f(12.63), NetIncome: f(90_000_000_000), Revenue: f(245_000_000_000), RevenueGrowthYoY: f(14.3), ROE: f(38.9), DividendYield: f(0.7), TotalDebt: f(68_000_000_000), FreeCashFlow: f(74_000_000_000)},
	{Ticker: "JPM", ID: 3, PERatio: f(11.9), EPS: f(17.85), NetIncome: f(49_000_000_000), Revenue: f(158_000_000_000), RevenueGrowthYoY: f(9.4), ROE: f(17.2), DividendYield: f(2.3), TotalDebt: f(430_000_000_000), FreeCashFlow: nil},
	{Ticker: "XOM", ID: 4, PERatio: f(13.4), EPS: f(8.89), NetIncome: f(34_000_000_000), Revenue: f(339_000_000_000), RevenueGrowthYoY: f(-2.8), ROE: f(19.6), DividendYield: f(3.6), TotalDebt: f(41_000_000_000), FreeCashFlow: f(31_000_000_000)},
	{Ticker: "PFE", ID: 5, PERatio: f(19.1), EPS: f(1.30), NetIncome: f(7_300_000_000), Revenue: f(58_000_000_000), RevenueGrowthYoY: f(-4.2), ROE: f(8.1), DividendYield: f(6.8), TotalDebt: f(57_000_000_000), FreeCashFlow: f(9_000_000_000)},
}
