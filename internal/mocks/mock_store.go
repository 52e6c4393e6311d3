package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenforge/internal/store"
)

// MockStore is a disconnected, in-memory implementation of
// internal/datastore.DataStore, seeded from JSON fixtures (or a small
// built-in seed set when fixtures are absent) and guarded by a mutex since
// the Scheduler fans out concurrent ticker-group fetches against it
// (spec §5). It satisfies datastore.DataStore structurally; it does not
// import that package to avoid a cycle, the same arrangement the teacher
// uses between internal/mocks and internal/datastore.
type MockStore struct {
	mu sync.RWMutex

	instruments  map[string]store.Instrument
	quotes       map[string]store.Quote
	fundamentals map[string]store.Fundamentals
	alerts       map[string]store.AlertSubscription
}

// NewMockStore builds a MockStore from JSON fixtures under basePath. When no
// instruments are loaded, the small built-in seed set replaces the
// instruments, quotes and fundamentals; alerts are never seeded.
func NewMockStore(basePath string) (*MockStore, error) {
	loader := newJSONDataLoader(basePath)

	instruments, err := loader.loadInstruments()
	if err != nil {
		return nil, err
	}
	quotes, err := loader.loadQuotes()
	if err != nil {
		return nil, err
	}
	fundamentals, err := loader.loadFundamentals()
	if err != nil {
		return nil, err
	}
	alerts, err := loader.loadAlerts()
	if err != nil {
		return nil, err
	}

	if len(instruments) == 0 {
		instruments, quotes, fundamentals = seedInstruments, seedQuotes, seedFundamentals
	}

	m := &MockStore{
		instruments:  make(map[string]store.Instrument, len(instruments)),
		quotes:       make(map[string]store.Quote, len(quotes)),
		fundamentals: make(map[string]store.Fundamentals, len(fundamentals)),
		alerts:       make(map[string]store.AlertSubscription, len(alerts)),
	}
	for _, i := range instruments {
		m.instruments[i.Ticker] = i
	}
	for _, q := range quotes {
		m.quotes[q.Ticker] = q
	}
	for _, f := range fundamentals {
		m.fundamentals[f.Ticker] = f
	}
	for _, a := range alerts {
		m.alerts[a.ID] = a
	}
	return m, nil
}

func (m *MockStore) Close() error                         { return nil }
func (m *MockStore) InitSchema(ctx context.Context) error { return nil }

// RunScreen ignores the compiled predicate (there is no SQL engine behind
// the mock) and returns every seeded instrument as a generic row, so
// callers exercising the HTTP/CLI surface without a database still get a
// non-empty, well-shaped result set. It cannot honor sort/limit/WHERE
// semantics; that fidelity requires the Postgres-backed store.
func (m *MockStore) RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tickers := make([]string, 0, len(m.instruments))
	for t := range m.instruments {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	rows := make([]map[string]any, 0, len(tickers))
	for _, t := range tickers {
		inst := m.instruments[t]
		row := map[string]any{
			"ticker": inst.Ticker, "sector": inst.Sector, "industry": inst.Industry,
			"exchange": inst.Exchange, "market_cap": inst.MarketCap,
		}
		if f, ok := m.fundamentals[t]; ok {
			row["pe_ratio"], row["eps"], row["net_income"] = f.PERatio, f.EPS, f.NetIncome
			row["revenue"], row["roe"] = f.Revenue, f.ROE
		}
		if q, ok := m.quotes[t]; ok {
			row["price"] = q.Close
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *MockStore) ActiveAlerts(ctx context.Context, rateLimitWindow time.Duration) ([]store.AlertSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-rateLimitWindow)
	var out []store.AlertSubscription
	for _, a := range m.alerts {
		if !a.Active {
			continue
		}
		if a.LastTriggered == nil || a.LastTriggered.Before(cutoff) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("mocks: alert %q not found", id)
	}
	atCopy := at
	a.LastTriggered = &atCopy
	a.LastEvaluated = &atCopy
	a.TriggerCount++
	m.alerts[id] = a
	return nil
}

func (m *MockStore) MarkEvaluated(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("mocks: alert %q not found", id)
	}
	atCopy := at
	a.LastEvaluated = &atCopy
	m.alerts[id] = a
	return nil
}

func (m *MockStore) CreateAlert(ctx context.Context, a store.AlertSubscription) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.alerts[a.ID] = a
	return a.ID, nil
}

func (m *MockStore) GetAlert(ctx context.Context, id string) (*store.AlertSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("mocks: alert %q not found", id)
	}
	return &a, nil
}

func (m *MockStore) ListAlerts(ctx context.Context, userID string) ([]store.AlertSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.AlertSubscription
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) UpdateAlertActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("mocks: alert %q not found", id)
	}
	a.Active = active
	m.alerts[id] = a
	return nil
}

func (m *MockStore) DeleteAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, id)
	return nil
}

func (m *MockStore) Quote(ctx context.Context, ticker string) (*store.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[ticker]
	if !ok {
		return nil, fmt.Errorf("mocks: no quote for %q", ticker)
	}
	return &q, nil
}

func (m *MockStore) Metadata(ctx context.Context, ticker string) (*store.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.instruments[ticker]
	if !ok {
		return nil, fmt.Errorf("mocks: no instrument for %q", ticker)
	}
	return &store.Metadata{Ticker: i.Ticker, Sector: i.Sector, Industry: i.Industry, Exchange: i.Exchange}, nil
}

func (m *MockStore) Fundamentals(ctx context.Context, ticker string) (*store.Fundamentals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fundamentals[ticker]
	if !ok {
		return nil, fmt.Errorf("mocks: no fundamentals for %q", ticker)
	}
	return &f, nil
}

func (m *MockStore) DistinctTickers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.instruments))
	for t := range m.instruments {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
