// Package coordinator sequences task lifecycle transitions and drives
// the settlement step the registry deliberately does not perform.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/CemAyyildiz/taskFlow/internal/metric"
	"github.com/CemAyyildiz/taskFlow/pkg/event"
	"github.com/CemAyyildiz/taskFlow/pkg/settlement"
	"github.com/CemAyyildiz/taskFlow/pkg/task"
)

// ErrInvariantViolation marks a state that the registry's own
// preconditions should make impossible. It indicates a bug, not a
// caller error, and is never safe to swallow.
var ErrInvariantViolation = errors.New("task invariant violation")

// TaskStore is the registry surface the coordinator drives.
type TaskStore interface {
	Create(p task.CreateParams) (*task.Task, error)
	Claim(taskID, worker string) (*task.Task, error)
	SubmitResult(taskID, worker, result string) (*task.Task, error)
	Confirm(taskID, requester string) (*task.Task, error)
	BeginPayout(taskID string) (*task.Task, error)
	EndPayout(taskID string)
	RecordPayout(taskID, payoutRef string) (*task.Task, error)
	Get(taskID string) (*task.Task, error)
}

// Config contains all dependencies needed by the Coordinator.
// Settlement may be nil: the process then runs in degraded mode where
// confirmation works but payouts report ErrNotConfigured.
type Config struct {
	Store      TaskStore
	Settlement settlement.Client
	Events     *event.Broadcaster
}

// Coordinator owns the orchestration between the registry, the
// settlement layer and the notification port.
type Coordinator struct {
	store      TaskStore
	settlement settlement.Client
	events     *event.Broadcaster
}

// New creates a coordinator with its dependencies injected.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("coordinator: store is nil")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("coordinator: broadcaster is nil")
	}
	return &Coordinator{
		store:      cfg.Store,
		settlement: cfg.Settlement,
		events:     cfg.Events,
	}, nil
}

// RequestTask creates a new task on behalf of the requester.
func (c *Coordinator) RequestTask(p task.CreateParams) (*task.Task, error) {
	t, err := c.store.Create(p)
	if err != nil {
		return nil, err
	}
	log.Info().Str("task", t.ID).Str("title", t.Title).Str("reward", t.Reward.String()).Msg("task created")
	metric.RecordTransition("create")
	c.publish(event.TaskCreated, map[string]interface{}{
		"taskId": t.ID,
		"title":  t.Title,
		"reward": t.Reward.String(),
	})
	return t, nil
}

// AcceptTask claims an open task for a worker.
func (c *Coordinator) AcceptTask(taskID, worker string) (*task.Task, error) {
	t, err := c.store.Claim(taskID, worker)
	if err != nil {
		return nil, err
	}
	log.Info().Str("task", t.ID).Str("worker", worker).Msg("task accepted")
	metric.RecordTransition("claim")
	c.publish(event.TaskAccepted, map[string]interface{}{
		"taskId": t.ID,
		"worker": t.Worker,
	})
	return t, nil
}

// ReportResult records the worker's result.
func (c *Coordinator) ReportResult(taskID, worker, result string) (*task.Task, error) {
	t, err := c.store.SubmitResult(taskID, worker, result)
	if err != nil {
		return nil, err
	}
	log.Info().Str("task", t.ID).Msg("result submitted")
	metric.RecordTransition("submit_result")
	c.publish(event.TaskCompleted, map[string]interface{}{
		"taskId": t.ID,
	})
	return t, nil
}

// FinalizeAndPay confirms the submitted result and settles the reward.
//
// Confirmation and payment are deliberately not atomic: the logical
// "requester accepted the result" fact commits immediately, and a
// failed transfer leaves the task CONFIRMED rather than rolling that
// fact back. Calling FinalizeAndPay again on a CONFIRMED task skips
// straight to the payment step, which is how payment retry works.
// The payment step itself is reserved through the registry, so two
// racing finalize calls can never both reach the transfer: the loser
// fails with ErrPaymentInFlight before any funds move.
func (c *Coordinator) FinalizeAndPay(ctx context.Context, taskID, requester string) (*task.Task, error) {
	t, err := c.store.Get(taskID)
	if err != nil {
		return nil, err
	}

	if t.Status != task.StatusConfirmed {
		if t, err = c.store.Confirm(taskID, requester); err != nil {
			return nil, err
		}
		log.Info().Str("task", t.ID).Msg("task confirmed")
		metric.RecordTransition("confirm")
		c.publish(event.TaskConfirmed, map[string]interface{}{
			"taskId": t.ID,
		})
	} else if !strings.EqualFold(t.Requester, requester) {
		return nil, fmt.Errorf("%w: only the requester can finalize", task.ErrUnauthorized)
	}

	if t.Worker == "" {
		log.Error().Str("task", t.ID).Msg("confirmed task has no worker")
		return nil, fmt.Errorf("%w: confirmed task %s has no worker", ErrInvariantViolation, t.ID)
	}

	if t, err = c.store.BeginPayout(t.ID); err != nil {
		return nil, err
	}

	receipt, err := c.transfer(ctx, t)
	if err != nil {
		// Task stays CONFIRMED; the caller may retry once the
		// settlement layer recovers.
		c.store.EndPayout(t.ID)
		log.Error().Err(err).Str("task", t.ID).Msg("payment failed")
		c.publish(event.PaymentFailed, map[string]interface{}{
			"taskId": t.ID,
			"error":  err.Error(),
		})
		return t, fmt.Errorf("task %s confirmed but payment failed: %w", t.ID, err)
	}

	paid, err := c.store.RecordPayout(t.ID, receipt.Ref)
	if err != nil {
		return nil, err
	}
	log.Info().Str("task", paid.ID).Str("tx", receipt.Ref).Msg("payment sent")
	metric.RecordTransition("record_payout")
	c.publish(event.PaymentSent, map[string]interface{}{
		"taskId":            paid.ID,
		"transferReference": receipt.Ref,
		"amount":            paid.Reward.String(),
		"to":                paid.Worker,
	})
	return paid, nil
}

// Balance reports the platform wallet balance, when settlement is
// configured.
func (c *Coordinator) Balance(ctx context.Context) (decimal.Decimal, error) {
	if c.settlement == nil {
		return decimal.Zero, settlement.ErrNotConfigured
	}
	return c.settlement.Balance(ctx, c.settlement.From())
}

// Wallet returns the paying identity's address, or empty when
// settlement is not configured.
func (c *Coordinator) Wallet() string {
	if c.settlement == nil {
		return ""
	}
	return c.settlement.From()
}

func (c *Coordinator) transfer(ctx context.Context, t *task.Task) (*settlement.Receipt, error) {
	if c.settlement == nil {
		return nil, settlement.ErrNotConfigured
	}
	start := time.Now()
	receipt, err := c.settlement.Transfer(ctx, t.Worker, t.Reward)
	if err != nil {
		metric.RecordSettlementFailure(failureReason(err))
		return nil, err
	}
	metric.RecordSettlement(time.Since(start))
	return receipt, nil
}

func (c *Coordinator) publish(name string, payload map[string]interface{}) {
	metric.RecordEvent(name)
	c.events.Publish(name, payload)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, settlement.ErrTransferReverted):
		return "reverted"
	case errors.Is(err, settlement.ErrNotConfigured):
		return "not_configured"
	default:
		return "network"
	}
}
