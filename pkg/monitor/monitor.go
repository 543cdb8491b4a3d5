// Package monitor runs the supervisory sweep over the task registry.
// It flags tasks stuck in intermediate states for operator attention
// and never mutates task state itself.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CemAyyildiz/taskFlow/internal/metric"
	"github.com/CemAyyildiz/taskFlow/pkg/event"
	"github.com/CemAyyildiz/taskFlow/pkg/task"
)

// TaskLister is the read-only registry surface the sweep scans.
type TaskLister interface {
	List(status task.Status) []*task.Task
	Counts() map[task.Status]int
}

// BalanceFunc reports the platform wallet balance for the census log.
// Nil when settlement is not configured.
type BalanceFunc func(ctx context.Context) (string, error)

// Config for the sweep. Thresholds are configuration values, not
// derived.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// StaleClaimThreshold flags tasks CLAIMED longer than this.
	StaleClaimThreshold time.Duration
	// AwaitingPaymentThreshold flags tasks SUBMITTED or CONFIRMED
	// longer than this without reaching PAID.
	AwaitingPaymentThreshold time.Duration

	Store   TaskLister
	Events  *event.Broadcaster
	Balance BalanceFunc
}

// Monitor is the periodic sweep service.
type Monitor struct {
	cfg    Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates dependencies and returns a stopped monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("monitor: store is nil")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("monitor: broadcaster is nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.StaleClaimThreshold <= 0 {
		cfg.StaleClaimThreshold = 30 * time.Minute
	}
	if cfg.AwaitingPaymentThreshold <= 0 {
		cfg.AwaitingPaymentThreshold = 2 * time.Minute
	}
	return &Monitor{cfg: cfg}, nil
}

// Start launches the sweep loop. It runs until Stop or context
// cancellation.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
	log.Info().Dur("interval", m.cfg.Interval).Msg("monitor started")
}

// Stop cancels the loop and waits for the in-flight sweep.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	log.Info().Msg("monitor stopped")
}

// Sweep scans all tasks once and emits anomaly notifications. Exposed
// so callers can trigger a scan outside the ticker.
func (m *Monitor) Sweep(ctx context.Context) {
	now := time.Now()

	for _, t := range m.cfg.Store.List(task.StatusClaimed) {
		age := now.Sub(t.UpdatedAt)
		if age > m.cfg.StaleClaimThreshold {
			log.Warn().Str("task", t.ID).Dur("age", age).Msg("stale claim")
			metric.RecordAnomaly("stale_claim")
			m.cfg.Events.Publish(event.StaleClaim, map[string]interface{}{
				"taskId": t.ID,
				"age":    age.String(),
			})
		}
	}

	for _, status := range []task.Status{task.StatusResultSubmitted, task.StatusConfirmed} {
		for _, t := range m.cfg.Store.List(status) {
			age := now.Sub(t.UpdatedAt)
			if age > m.cfg.AwaitingPaymentThreshold {
				log.Warn().Str("task", t.ID).Str("status", string(t.Status)).Dur("age", age).Msg("awaiting payment")
				metric.RecordAnomaly("awaiting_payment")
				m.cfg.Events.Publish(event.AwaitingPayment, map[string]interface{}{
					"taskId": t.ID,
					"age":    age.String(),
				})
			}
		}
	}

	counts := m.cfg.Store.Counts()
	census := log.Info().
		Int("open", counts[task.StatusOpen]).
		Int("claimed", counts[task.StatusClaimed]).
		Int("submitted", counts[task.StatusResultSubmitted]).
		Int("confirmed", counts[task.StatusConfirmed]).
		Int("paid", counts[task.StatusPaid])

	if m.cfg.Balance != nil {
		if bal, err := m.cfg.Balance(ctx); err == nil {
			census = census.Str("balance", bal)
		}
	}
	census.Msg("sweep complete")
}
