package mocks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenforge/internal/mocks"
	"screenforge/internal/store"
)

func TestNewMockStore_FallsBackToBuiltInSeedWhenNoFixtures(t *testing.T) {
	m, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	tickers, err := m.DistinctTickers(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tickers, "AAPL")
}

func TestMockStore_CreateAndGetAlert(t *testing.T) {
	m, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	id, err := m.CreateAlert(ctx, store.AlertSubscription{
		UserID: "u1",
		Kind:   store.AlertPriceThreshold,
		Active: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := m.GetAlert(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestMockStore_ActiveAlertsRespectsRateLimitWindow(t *testing.T) {
	m, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	recent, err := m.CreateAlert(ctx, store.AlertSubscription{UserID: "u1", Kind: store.AlertPriceThreshold, Active: true})
	require.NoError(t, err)
	require.NoError(t, m.MarkTriggered(ctx, recent, time.Now()))

	stale, err := m.CreateAlert(ctx, store.AlertSubscription{UserID: "u1", Kind: store.AlertPriceThreshold, Active: true})
	require.NoError(t, err)
	require.NoError(t, m.MarkTriggered(ctx, stale, time.Now().Add(-48*time.Hour)))

	active, err := m.ActiveAlerts(ctx, 24*time.Hour)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, a := range active {
		ids[a.ID] = true
	}
	assert.False(t, ids[recent], "recently triggered alert should be rate-limited out")
	assert.True(t, ids[stale], "alert triggered outside the rate-limit window should be eligible again")
}

func TestMockStore_UpdateAndDeleteAlert(t *testing.T) {
	m, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	id, err := m.CreateAlert(ctx, store.AlertSubscription{UserID: "u1", Kind: store.AlertPriceThreshold, Active: true})
	require.NoError(t, err)

	require.NoError(t, m.UpdateAlertActive(ctx, id, false))
	got, err := m.GetAlert(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, m.DeleteAlert(ctx, id))
	_, err = m.GetAlert(ctx, id)
	assert.Error(t, err)
}

func TestMockStore_RunScreenReturnsSeededInstruments(t *testing.T) {
	m, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	rows, err := m.RunScreen(context.Background(), "irrelevant in mock mode", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}
