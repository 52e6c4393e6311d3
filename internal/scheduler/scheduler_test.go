package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenforge/internal/catalog"
	"screenforge/internal/compiler"
	"screenforge/internal/evaluator"
	"screenforge/internal/mocks"
	"screenforge/internal/notify"
	"screenforge/internal/scheduler"
	"screenforge/internal/store"
	"screenforge/internal/validator"
)

type capturingSink struct {
	mu   sync.Mutex
	seen []notify.Notification
}

func (c *capturingSink) Emit(ctx context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, n)
	return nil
}

func (c *capturingSink) notifications() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Notification{}, c.seen...)
}

func TestRunOnce_TriggersPriceThresholdAlertAndEmitsNotification(t *testing.T) {
	ms, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer ms.Close()

	cat, err := catalog.Default()
	require.NoError(t, err)
	val := validator.New(cat)
	comp := compiler.New(cat)
	eval := evaluator.New(cat, val, comp, ms)
	sink := &capturingSink{}

	ctx := context.Background()
	ticker := "AAPL" // seeded close = 228.50
	_, err = ms.CreateAlert(ctx, store.AlertSubscription{
		UserID:    "u1",
		Ticker:    &ticker,
		Kind:      store.AlertPriceThreshold,
		Condition: []byte(`{"op":">","value":100}`),
		Active:    true,
	})
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{
		CadenceSeconds:    60,
		RateLimitWindow:   24 * time.Hour,
		MaxParallelGroups: 4,
		FetchTimeout:      2 * time.Second,
	}, time.UTC, ms, eval, sink)

	sched.RunOnce(ctx)

	notifications := sink.notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "u1", notifications[0].UserID)
	assert.Equal(t, "AAPL", notifications[0].Ticker)

	active, err := ms.ActiveAlerts(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, active, "triggered alert should be rate-limited out of the next cycle")
}

func TestRunOnce_NonTriggeringAlertStaysActive(t *testing.T) {
	ms, err := mocks.NewMockStore(t.TempDir())
	require.NoError(t, err)
	defer ms.Close()

	cat, err := catalog.Default()
	require.NoError(t, err)
	val := validator.New(cat)
	comp := compiler.New(cat)
	eval := evaluator.New(cat, val, comp, ms)
	sink := &capturingSink{}

	ctx := context.Background()
	ticker := "AAPL"
	id, err := ms.CreateAlert(ctx, store.AlertSubscription{
		UserID:    "u1",
		Ticker:    &ticker,
		Kind:      store.AlertPriceThreshold,
		Condition: []byte(`{"op":"<","value":1}`),
		Active:    true,
	})
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{
		CadenceSeconds:    60,
		RateLimitWindow:   24 * time.Hour,
		MaxParallelGroups: 4,
		FetchTimeout:      2 * time.Second,
	}, time.UTC, ms, eval, sink)

	sched.RunOnce(ctx)

	assert.Empty(t, sink.notifications())

	got, err := ms.GetAlert(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got.LastEvaluated)
	assert.Nil(t, got.LastTriggered)
}
