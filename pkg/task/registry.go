package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateParams holds the requester-supplied fields for a new task.
// EscrowRef is optional: set when the requester already funded escrow
// for the reward at creation time.
type CreateParams struct {
	Title       string
	Description string
	Reward      decimal.Decimal
	Requester   string
	EscrowRef   string
}

// Registry is the authoritative in-memory collection of tasks. All
// transitions are check-and-set under one mutex, so two racing claims
// on the same OPEN task can never both pass the precondition. Every
// method either mutates fully and returns a snapshot, or fails
// without mutating.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	order   []string
	pending map[string]struct{}
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[string]*Task),
		pending: make(map[string]struct{}),
	}
}

// Create registers a new OPEN task and returns a snapshot of it.
func (r *Registry) Create(p CreateParams) (*Task, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	}
	if p.Requester == "" {
		return nil, fmt.Errorf("%w: requester", ErrMissingField)
	}
	if p.Reward.Sign() <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidReward, p.Reward)
	}

	now := time.Now()
	t := &Task{
		ID:          uuid.NewString()[:8],
		Title:       p.Title,
		Description: p.Description,
		Reward:      p.Reward,
		Requester:   p.Requester,
		Status:      StatusOpen,
		EscrowRef:   p.EscrowRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	return t.Clone(), nil
}

// Claim assigns an OPEN task to a worker. The status check and the
// worker assignment happen in one atomic step.
func (r *Registry) Claim(taskID, worker string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if worker == "" {
		return nil, fmt.Errorf("%w: worker", ErrMissingField)
	}

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusOpen {
		return nil, fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidState, taskID, t.Status, StatusOpen)
	}
	if sameAddress(worker, t.Requester) {
		return nil, fmt.Errorf("%w: %s", ErrSelfDealing, worker)
	}

	t.Worker = worker
	t.Status = StatusClaimed
	t.UpdatedAt = time.Now()
	return t.Clone(), nil
}

// SubmitResult records the worker's result on a CLAIMED task. Only the
// assigned worker may submit.
func (r *Registry) SubmitResult(taskID, worker, result string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusClaimed {
		return nil, fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidState, taskID, t.Status, StatusClaimed)
	}
	if !sameAddress(worker, t.Worker) {
		return nil, fmt.Errorf("%w: only the assigned worker can submit results", ErrUnauthorized)
	}

	t.Result = result
	t.Status = StatusResultSubmitted
	t.UpdatedAt = time.Now()
	return t.Clone(), nil
}

// Confirm records the requester's acceptance of a SUBMITTED result.
// Settlement is deliberately not part of this transition; the
// coordinator drives payment against a CONFIRMED task.
func (r *Registry) Confirm(taskID, requester string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusResultSubmitted {
		return nil, fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidState, taskID, t.Status, StatusResultSubmitted)
	}
	if !sameAddress(requester, t.Requester) {
		return nil, fmt.Errorf("%w: only the requester can confirm", ErrUnauthorized)
	}

	t.Status = StatusConfirmed
	t.UpdatedAt = time.Now()
	return t.Clone(), nil
}

// BeginPayout reserves a CONFIRMED task for payment. The status check
// and the reservation happen in one atomic step, so two racing payers
// can never both proceed: the loser gets ErrPaymentInFlight without
// any funds having moved on its behalf. The reservation is released by
// RecordPayout or EndPayout.
func (r *Registry) BeginPayout(taskID string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidState, taskID, t.Status, StatusConfirmed)
	}
	if _, inFlight := r.pending[taskID]; inFlight {
		return nil, fmt.Errorf("%w: task %s", ErrPaymentInFlight, taskID)
	}

	r.pending[taskID] = struct{}{}
	return t.Clone(), nil
}

// EndPayout releases a payment reservation without paying, after a
// failed transfer. The task stays CONFIRMED and payable again.
func (r *Registry) EndPayout(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, taskID)
}

// RecordPayout marks a CONFIRMED task PAID with the settlement
// transfer reference and releases its payment reservation. This is
// the final transition.
func (r *Registry) RecordPayout(taskID, payoutRef string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if t.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: task %s is %s, want %s", ErrInvalidState, taskID, t.Status, StatusConfirmed)
	}

	delete(r.pending, taskID)
	t.PayoutRef = payoutRef
	t.Status = StatusPaid
	t.UpdatedAt = time.Now()
	return t.Clone(), nil
}

// Get returns a snapshot of a task by ID.
func (r *Registry) Get(taskID string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return t.Clone(), nil
}

// List returns snapshots in creation order, optionally filtered by
// status. An empty status returns everything.
func (r *Registry) List(status Status) []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		t := r.tasks[id]
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, t.Clone())
	}
	return result
}

// Counts returns the number of tasks per status.
func (r *Registry) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[Status]int, 5)
	for _, t := range r.tasks {
		counts[t.Status]++
	}
	return counts
}
