package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/CemAyyildiz/taskFlow/pkg/event"
	"github.com/CemAyyildiz/taskFlow/pkg/task"
)

const (
	requesterAddr = "0xAaaa000000000000000000000000000000000001"
	workerAddr    = "0xBbbb000000000000000000000000000000000002"
)

func newMonitor(t *testing.T, registry *task.Registry, bus *event.Broadcaster, stale, awaiting time.Duration) *Monitor {
	t.Helper()
	m, err := New(Config{
		Interval:                 time.Hour, // sweeps triggered manually
		StaleClaimThreshold:      stale,
		AwaitingPaymentThreshold: awaiting,
		Store:                    registry,
		Events:                   bus,
	})
	require.NoError(t, err)
	return m
}

func collect(sub *event.Subscription) map[string]int {
	names := make(map[string]int)
	for {
		select {
		case ev := <-sub.C():
			names[ev.Name]++
		case <-time.After(50 * time.Millisecond):
			return names
		}
	}
}

func createTask(t *testing.T, registry *task.Registry) *task.Task {
	t.Helper()
	created, err := registry.Create(task.CreateParams{
		Title:     "watched",
		Reward:    decimal.RequireFromString("0.01"),
		Requester: requesterAddr,
	})
	require.NoError(t, err)
	return created
}

func TestSweepFlagsStaleClaim(t *testing.T) {
	registry := task.NewRegistry()
	bus := event.NewBroadcaster()
	defer bus.Close()
	sub := bus.Subscribe(16)

	created := createTask(t, registry)
	_, err := registry.Claim(created.ID, workerAddr)
	require.NoError(t, err)

	// Zero-width threshold: any claimed task is already stale.
	m := newMonitor(t, registry, bus, time.Nanosecond, time.Hour)
	time.Sleep(time.Millisecond)
	m.Sweep(context.Background())

	names := collect(sub)
	require.Equal(t, 1, names[event.StaleClaim])
	require.Zero(t, names[event.AwaitingPayment])

	// The sweep never mutates task state.
	got, err := registry.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusClaimed, got.Status)
}

func TestSweepIgnoresFreshClaim(t *testing.T) {
	registry := task.NewRegistry()
	bus := event.NewBroadcaster()
	defer bus.Close()
	sub := bus.Subscribe(16)

	created := createTask(t, registry)
	_, err := registry.Claim(created.ID, workerAddr)
	require.NoError(t, err)

	m := newMonitor(t, registry, bus, time.Hour, time.Hour)
	m.Sweep(context.Background())

	require.Empty(t, collect(sub))
}

func TestSweepFlagsAwaitingPayment(t *testing.T) {
	registry := task.NewRegistry()
	bus := event.NewBroadcaster()
	defer bus.Close()
	sub := bus.Subscribe(16)

	created := createTask(t, registry)
	_, err := registry.Claim(created.ID, workerAddr)
	require.NoError(t, err)
	_, err = registry.SubmitResult(created.ID, workerAddr, "report")
	require.NoError(t, err)
	_, err = registry.Confirm(created.ID, requesterAddr)
	require.NoError(t, err)

	m := newMonitor(t, registry, bus, time.Hour, time.Nanosecond)
	time.Sleep(time.Millisecond)
	m.Sweep(context.Background())

	names := collect(sub)
	require.Equal(t, 1, names[event.AwaitingPayment])
	require.Zero(t, names[event.StaleClaim])
}

func TestSweepIgnoresOpenAndPaid(t *testing.T) {
	registry := task.NewRegistry()
	bus := event.NewBroadcaster()
	defer bus.Close()
	sub := bus.Subscribe(16)

	createTask(t, registry)
	paid := createTask(t, registry)
	_, err := registry.Claim(paid.ID, workerAddr)
	require.NoError(t, err)
	_, err = registry.SubmitResult(paid.ID, workerAddr, "report")
	require.NoError(t, err)
	_, err = registry.Confirm(paid.ID, requesterAddr)
	require.NoError(t, err)
	_, err = registry.RecordPayout(paid.ID, "tx123")
	require.NoError(t, err)

	m := newMonitor(t, registry, bus, time.Nanosecond, time.Nanosecond)
	time.Sleep(time.Millisecond)
	m.Sweep(context.Background())

	require.Empty(t, collect(sub))
}

func TestStartStop(t *testing.T) {
	registry := task.NewRegistry()
	bus := event.NewBroadcaster()
	defer bus.Close()
	sub := bus.Subscribe(16)

	created := createTask(t, registry)
	_, err := registry.Claim(created.ID, workerAddr)
	require.NoError(t, err)

	m, err := New(Config{
		Interval:                 5 * time.Millisecond,
		StaleClaimThreshold:      time.Nanosecond,
		AwaitingPaymentThreshold: time.Hour,
		Store:                    registry,
		Events:                   bus,
	})
	require.NoError(t, err)

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		select {
		case ev := <-sub.C():
			return ev.Name == event.StaleClaim
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	m.Stop()
}
