package task

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	requesterAddr = "0xAaaa000000000000000000000000000000000001"
	workerAddr    = "0xBbbb000000000000000000000000000000000002"
)

type RegistryTestSuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	s.registry = NewRegistry()
}

func (s *RegistryTestSuite) createOpenTask() *Task {
	t, err := s.registry.Create(CreateParams{
		Title:       "Audit contract",
		Description: "Check the escrow logic",
		Reward:      decimal.RequireFromString("0.01"),
		Requester:   requesterAddr,
	})
	s.Require().NoError(err)
	return t
}

func (s *RegistryTestSuite) TestCreate() {
	t := s.createOpenTask()

	s.Equal(StatusOpen, t.Status)
	s.Equal("Audit contract", t.Title)
	s.Equal(requesterAddr, t.Requester)
	s.Empty(t.Worker)
	s.Empty(t.Result)
	s.Empty(t.PayoutRef)
	s.Len(t.ID, 8)
	s.False(t.CreatedAt.IsZero())
}

func (s *RegistryTestSuite) TestCreateRejectsNonPositiveReward() {
	for _, reward := range []string{"0", "-0.5"} {
		_, err := s.registry.Create(CreateParams{
			Title:     "bad reward",
			Reward:    decimal.RequireFromString(reward),
			Requester: requesterAddr,
		})
		s.ErrorIs(err, ErrInvalidReward)
	}
	s.Empty(s.registry.List(""))
}

func (s *RegistryTestSuite) TestClaim() {
	t := s.createOpenTask()

	claimed, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)
	s.Equal(StatusClaimed, claimed.Status)
	s.Equal(workerAddr, claimed.Worker)
	s.True(claimed.UpdatedAt.After(t.CreatedAt) || claimed.UpdatedAt.Equal(t.CreatedAt))
}

func (s *RegistryTestSuite) TestClaimSelfDealing() {
	t := s.createOpenTask()

	// Same address with different casing must still be rejected.
	_, err := s.registry.Claim(t.ID, "0xAAAA000000000000000000000000000000000001")
	s.ErrorIs(err, ErrSelfDealing)

	got, err := s.registry.Get(t.ID)
	s.Require().NoError(err)
	s.Equal(StatusOpen, got.Status)
	s.Empty(got.Worker)
}

func (s *RegistryTestSuite) TestClaimWrongState() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)

	_, err = s.registry.Claim(t.ID, "0xCccc000000000000000000000000000000000003")
	s.ErrorIs(err, ErrInvalidState)

	// Worker assignment must be untouched by the failed claim.
	got, err := s.registry.Get(t.ID)
	s.Require().NoError(err)
	s.Equal(workerAddr, got.Worker)
}

func (s *RegistryTestSuite) TestSubmitResult() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)

	submitted, err := s.registry.SubmitResult(t.ID, workerAddr, "report text")
	s.Require().NoError(err)
	s.Equal(StatusResultSubmitted, submitted.Status)
	s.Equal("report text", submitted.Result)
}

func (s *RegistryTestSuite) TestSubmitResultUnauthorized() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)

	_, err = s.registry.SubmitResult(t.ID, "0xDddd000000000000000000000000000000000004", "stolen")
	s.ErrorIs(err, ErrUnauthorized)

	got, err := s.registry.Get(t.ID)
	s.Require().NoError(err)
	s.Equal(StatusClaimed, got.Status)
	s.Empty(got.Result)
}

func (s *RegistryTestSuite) TestSubmitResultWrongState() {
	t := s.createOpenTask()
	_, err := s.registry.SubmitResult(t.ID, workerAddr, "too early")
	s.ErrorIs(err, ErrInvalidState)
}

func (s *RegistryTestSuite) TestConfirm() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)
	_, err = s.registry.SubmitResult(t.ID, workerAddr, "report text")
	s.Require().NoError(err)

	confirmed, err := s.registry.Confirm(t.ID, requesterAddr)
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, confirmed.Status)
	// Confirm must not touch settlement fields.
	s.Empty(confirmed.PayoutRef)
}

func (s *RegistryTestSuite) TestConfirmUnauthorized() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)
	_, err = s.registry.SubmitResult(t.ID, workerAddr, "report text")
	s.Require().NoError(err)

	_, err = s.registry.Confirm(t.ID, workerAddr)
	s.ErrorIs(err, ErrUnauthorized)
}

func (s *RegistryTestSuite) TestConfirmIsOneShot() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)
	_, err = s.registry.SubmitResult(t.ID, workerAddr, "report text")
	s.Require().NoError(err)
	_, err = s.registry.Confirm(t.ID, requesterAddr)
	s.Require().NoError(err)

	_, err = s.registry.Confirm(t.ID, requesterAddr)
	s.ErrorIs(err, ErrInvalidState)
}

func (s *RegistryTestSuite) TestRecordPayout() {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)
	_, err = s.registry.SubmitResult(t.ID, workerAddr, "report text")
	s.Require().NoError(err)
	_, err = s.registry.Confirm(t.ID, requesterAddr)
	s.Require().NoError(err)

	paid, err := s.registry.RecordPayout(t.ID, "tx123")
	s.Require().NoError(err)
	s.Equal(StatusPaid, paid.Status)
	s.Equal("tx123", paid.PayoutRef)
}

func (s *RegistryTestSuite) TestRecordPayoutWrongState() {
	t := s.createOpenTask()
	_, err := s.registry.RecordPayout(t.ID, "tx123")
	s.ErrorIs(err, ErrInvalidState)

	got, err := s.registry.Get(t.ID)
	s.Require().NoError(err)
	s.Empty(got.PayoutRef)
}

func (s *RegistryTestSuite) createConfirmedTask() *Task {
	t := s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)
	_, err = s.registry.SubmitResult(t.ID, workerAddr, "report text")
	s.Require().NoError(err)
	confirmed, err := s.registry.Confirm(t.ID, requesterAddr)
	s.Require().NoError(err)
	return confirmed
}

func (s *RegistryTestSuite) TestCreateRequiresFields() {
	_, err := s.registry.Create(CreateParams{
		Reward:    decimal.RequireFromString("0.01"),
		Requester: requesterAddr,
	})
	s.ErrorIs(err, ErrMissingField)

	_, err = s.registry.Create(CreateParams{
		Title:  "no requester",
		Reward: decimal.RequireFromString("0.01"),
	})
	s.ErrorIs(err, ErrMissingField)

	s.Empty(s.registry.List(""))
}

func (s *RegistryTestSuite) TestClaimRequiresWorker() {
	t := s.createOpenTask()

	_, err := s.registry.Claim(t.ID, "")
	s.ErrorIs(err, ErrMissingField)

	got, err := s.registry.Get(t.ID)
	s.Require().NoError(err)
	s.Equal(StatusOpen, got.Status)
	s.Empty(got.Worker)
}

func (s *RegistryTestSuite) TestBeginPayoutReservesOnce() {
	t := s.createConfirmedTask()

	reserved, err := s.registry.BeginPayout(t.ID)
	s.Require().NoError(err)
	s.Equal(StatusConfirmed, reserved.Status)

	// A second payer must not get through while the first is running.
	_, err = s.registry.BeginPayout(t.ID)
	s.ErrorIs(err, ErrPaymentInFlight)

	// Releasing after a failed transfer makes the task payable again.
	s.registry.EndPayout(t.ID)
	_, err = s.registry.BeginPayout(t.ID)
	s.NoError(err)
}

func (s *RegistryTestSuite) TestBeginPayoutWrongState() {
	t := s.createOpenTask()
	_, err := s.registry.BeginPayout(t.ID)
	s.ErrorIs(err, ErrInvalidState)

	_, err = s.registry.BeginPayout("deadbeef")
	s.ErrorIs(err, ErrNotFound)
}

func (s *RegistryTestSuite) TestRecordPayoutReleasesReservation() {
	t := s.createConfirmedTask()

	_, err := s.registry.BeginPayout(t.ID)
	s.Require().NoError(err)
	paid, err := s.registry.RecordPayout(t.ID, "tx123")
	s.Require().NoError(err)
	s.Equal(StatusPaid, paid.Status)

	// No stale reservation: the PAID status is what blocks re-payment.
	_, err = s.registry.BeginPayout(t.ID)
	s.ErrorIs(err, ErrInvalidState)
}

func (s *RegistryTestSuite) TestGetNotFound() {
	_, err := s.registry.Get("deadbeef")
	s.ErrorIs(err, ErrNotFound)
}

func (s *RegistryTestSuite) TestListCreationOrderAndFilter() {
	first := s.createOpenTask()
	second, err := s.registry.Create(CreateParams{
		Title:     "Second task",
		Reward:    decimal.RequireFromString("0.02"),
		Requester: requesterAddr,
	})
	s.Require().NoError(err)
	_, err = s.registry.Claim(second.ID, workerAddr)
	s.Require().NoError(err)

	all := s.registry.List("")
	s.Require().Len(all, 2)
	s.Equal(first.ID, all[0].ID)
	s.Equal(second.ID, all[1].ID)

	open := s.registry.List(StatusOpen)
	s.Require().Len(open, 1)
	s.Equal(first.ID, open[0].ID)
}

func (s *RegistryTestSuite) TestSnapshotsDoNotAliasRegistryState() {
	t := s.createOpenTask()
	t.Status = StatusPaid
	t.Worker = "tampered"

	got, err := s.registry.Get(t.ID)
	s.Require().NoError(err)
	s.Equal(StatusOpen, got.Status)
	s.Empty(got.Worker)
}

func (s *RegistryTestSuite) TestCounts() {
	t := s.createOpenTask()
	s.createOpenTask()
	_, err := s.registry.Claim(t.ID, workerAddr)
	s.Require().NoError(err)

	counts := s.registry.Counts()
	s.Equal(1, counts[StatusOpen])
	s.Equal(1, counts[StatusClaimed])
}

// TestConcurrentClaim races many workers for one OPEN task: exactly
// one claim succeeds, every other observes ErrInvalidState.
func TestConcurrentClaim(t *testing.T) {
	registry := NewRegistry()
	created, err := registry.Create(CreateParams{
		Title:     "contested",
		Reward:    decimal.RequireFromString("1"),
		Requester: requesterAddr,
	})
	require.NoError(t, err)

	const workers = 32
	var wg sync.WaitGroup
	errs := make([]error, workers)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			_, errs[n] = registry.Claim(created.ID, workerAddr)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, ErrInvalidState)
			lost++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, workers-1, lost)

	got, err := registry.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClaimed, got.Status)
	require.Equal(t, workerAddr, got.Worker)
}
