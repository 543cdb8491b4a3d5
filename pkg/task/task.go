// Package task implements the task lifecycle state machine and the
// in-memory registry that owns every Task instance.
//
// Lifecycle: OPEN → CLAIMED → SUBMITTED → CONFIRMED → PAID. Each
// transition has exactly one legal predecessor state and one writer;
// the registry rejects everything else with ErrInvalidState.
package task

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrInvalidState    = errors.New("invalid task state for transition")
	ErrUnauthorized    = errors.New("caller is not authorized for this transition")
	ErrSelfDealing     = errors.New("requester cannot claim their own task")
	ErrInvalidReward   = errors.New("reward must be a positive amount")
	ErrMissingField    = errors.New("required task field is missing")
	ErrPaymentInFlight = errors.New("a payment for this task is already in flight")
)

// Status tracks the lifecycle of a task. Wire values match the
// platform's public enum.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusClaimed         Status = "CLAIMED"
	StatusResultSubmitted Status = "SUBMITTED"
	StatusConfirmed       Status = "CONFIRMED"
	StatusPaid            Status = "PAID"
)

// Valid reports whether s is one of the lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClaimed, StatusResultSubmitted, StatusConfirmed, StatusPaid:
		return true
	}
	return false
}

// Task is a unit of delegable work with an attached reward.
//
// Worker is set exactly once, at claim time. PayoutRef is set exactly
// once, at the final transition to PAID. Requester and Worker are
// caller-asserted address strings: the self-dealing check is a
// case-insensitive string comparison, not an identity guarantee.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Reward      decimal.Decimal `json:"reward"`
	Requester   string          `json:"requester"`
	Worker      string          `json:"worker,omitempty"`
	Status      Status          `json:"status"`
	Result      string          `json:"result,omitempty"`
	EscrowRef   string          `json:"escrow_ref,omitempty"`
	PayoutRef   string          `json:"payout_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Clone returns a copy the caller may keep; registry-owned instances
// never leave the registry.
func (t *Task) Clone() *Task {
	cp := *t
	return &cp
}

// sameAddress compares caller-asserted addresses the way the platform
// always has: case-insensitively.
func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
