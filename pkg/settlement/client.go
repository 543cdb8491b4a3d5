// Package settlement moves reward funds between parties on the
// underlying network. The coordinator depends on the Client interface
// only; the concrete implementation signs and broadcasts native token
// transfers over an Ethereum-compatible RPC endpoint.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransferReverted means the transfer was mined but failed
	// on-chain. The funds did not move; the transfer may be retried.
	ErrTransferReverted = errors.New("transfer reverted on chain")

	// ErrNetworkFailure covers RPC and transport errors where the
	// definitive outcome of the transfer could not be obtained.
	ErrNetworkFailure = errors.New("settlement network failure")

	// ErrNotConfigured means no signing key was configured, so the
	// process cannot pay out. Tasks stay payable once a key is set.
	ErrNotConfigured = errors.New("settlement client not configured")
)

// Receipt identifies a confirmed transfer.
type Receipt struct {
	// Ref is the opaque transfer reference (transaction hash).
	Ref string
	// Block the transfer was confirmed in.
	Block uint64
	// ConfirmedAt is when confirmation was observed.
	ConfirmedAt time.Time
}

// Client settles rewards. Transfer blocks until the transfer is
// definitively confirmed or failed; it enforces its own timeout
// policy and callers do not retry within a single invocation.
type Client interface {
	// Transfer sends amount (native token units) from the client's
	// bound identity to the given address.
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (*Receipt, error)

	// Balance returns the native token balance of an address.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)

	// From returns the address of the paying identity.
	From() string

	Close()
}
