// Package datastore defines the DataStore boundary the Compiler's output is
// executed against and the Scheduler/Evaluator read alert state through
// (spec §6.3, §6.4). It is implemented by a real Postgres-backed
// internal/store.Store and, for local development and tests without a live
// database, a JSON-fixture-backed internal/mocks.MockStore.
//
// This dual-implementation-behind-one-interface shape is carried directly
// from the teacher's own internal/datastore/interface.go, which switches on
// a Config.Type between a postgresAdapter and a mockAdapter; only the method
// set changed, from the onboarding CBU/role/dictionary operations to the
// screener's RunScreen/alert/quote operations.
package datastore

import (
	"context"
	"fmt"
	"time"

	"screenforge/internal/mocks"
	"screenforge/internal/store"
)

// DataStore is every data operation the daemon, scheduler, and HTTP surface
// need, independent of whether the backing store is Postgres or mock JSON
// fixtures.
type DataStore interface {
	Close() error

	// Lifecycle
	InitSchema(ctx context.Context) error

	// Screener execution (spec §4.4 Compiled output, §6.1 Screener run)
	RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error)

	// Alert subscriptions (spec §3.5, §6.1 Alert CRUD)
	ActiveAlerts(ctx context.Context, rateLimitWindow time.Duration) ([]store.AlertSubscription, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	MarkEvaluated(ctx context.Context, id string, at time.Time) error
	CreateAlert(ctx context.Context, a store.AlertSubscription) (string, error)
	GetAlert(ctx context.Context, id string) (*store.AlertSubscription, error)
	ListAlerts(ctx context.Context, userID string) ([]store.AlertSubscription, error)
	UpdateAlertActive(ctx context.Context, id string, active bool) error
	DeleteAlert(ctx context.Context, id string) error

	// Live data feeds (spec §4.5, §4.6 step 3)
	Quote(ctx context.Context, ticker string) (*store.Quote, error)
	Metadata(ctx context.Context, ticker string) (*store.Metadata, error)
	Fundamentals(ctx context.Context, ticker string) (*store.Fundamentals, error)
	DistinctTickers(ctx context.Context) ([]string, error)
}

// Type selects which concrete implementation New builds.
type Type string

const (
	Postgres Type = "postgresql"
	Mock     Type = "mock"
)

// Config is the subset of internal/config consumed when constructing a
// DataStore, kept as a narrow struct so tests can build one without pulling
// in all of viper.
type Config struct {
	Type             Type
	ConnectionString string
	MockDataPath     string
}

// New builds a DataStore per Config.Type.
func New(cfg Config) (DataStore, error) {
	switch cfg.Type {
	case Postgres:
		s, err := store.New(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		return postgresAdapter{s}, nil
	case Mock:
		m, err := mocks.NewMockStore(cfg.MockDataPath)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("datastore: unsupported store type %q", cfg.Type)
	}
}

// postgresAdapter lets *store.Store satisfy DataStore without store itself
// importing this package (avoiding an import cycle, same reasoning as the
// teacher's postgresAdapter).
type postgresAdapter struct{ s *store.Store }

func (p postgresAdapter) Close() error                        { return p.s.Close() }
func (p postgresAdapter) InitSchema(ctx context.Context) error { return p.s.InitSchema(ctx) }

func (p postgresAdapter) RunScreen(ctx context.Context, sqlText string, args []any) ([]map[string]any, error) {
	return p.s.RunScreen(ctx, sqlText, args)
}

func (p postgresAdapter) ActiveAlerts(ctx context.Context, w time.Duration) ([]store.AlertSubscription, error) {
	return p.s.ActiveAlerts(ctx, w)
}
func (p postgresAdapter) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	return p.s.MarkTriggered(ctx, id, at)
}
func (p postgresAdapter) MarkEvaluated(ctx context.Context, id string, at time.Time) error {
	return p.s.MarkEvaluated(ctx, id, at)
}
func (p postgresAdapter) CreateAlert(ctx context.Context, a store.AlertSubscription) (string, error) {
	return p.s.CreateAlert(ctx, a)
}
func (p postgresAdapter) GetAlert(ctx context.Context, id string) (*store.AlertSubscription, error) {
	return p.s.GetAlert(ctx, id)
}
func (p postgresAdapter) ListAlerts(ctx context.Context, userID string) ([]store.AlertSubscription, error) {
	return p.s.ListAlerts(ctx, userID)
}
func (p postgresAdapter) UpdateAlertActive(ctx context.Context, id string, active bool) error {
	return p.s.UpdateAlertActive(ctx, id, active)
}
func (p postgresAdapter) DeleteAlert(ctx context.Context, id string) error {
	return p.s.DeleteAlert(ctx, id)
}
func (p postgresAdapter) Quote(ctx context.Context, ticker string) (*store.Quote, error) {
	return p.s.Quote(ctx, ticker)
}
func (p postgresAdapter) Metadata(ctx context.Context, ticker string) (*store.Metadata, error) {
	return p.s.Metadata(ctx, ticker)
}
func (p postgresAdapter) Fundamentals(ctx context.Context, ticker string) (*store.Fundamentals, error) {
	return p.s.Fundamentals(ctx, ticker)
}
func (p postgresAdapter) DistinctTickers(ctx context.Context) ([]string, error) {
	return p.s.DistinctTickers(ctx)
}
