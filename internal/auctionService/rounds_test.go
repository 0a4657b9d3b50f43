package auction

import (
	"context"
	"sync"
	"testing"

	"reverse-auction/internal/auctionerrors"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"

	"github.com/stretchr/testify/require"
)

func TestSubmitDecision_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	snap := f.started(t, 3, "1000.00")
	id, pid := snap.Auction.AuctionID, ids(snap)[0]

	tests := []struct {
		name          string
		in            DecisionInput
		expectedError error
	}{
		{"missing_auction", DecisionInput{ParticipantID: pid, Round: 1, Decision: model.DecisionAccept}, auctionerrors.ErrValidation},
		{"missing_participant", DecisionInput{AuctionID: id, Round: 1, Decision: model.DecisionAccept}, auctionerrors.ErrValidation},
		{"zero_round", DecisionInput{AuctionID: id, ParticipantID: pid, Decision: model.DecisionAccept}, auctionerrors.ErrValidation},
		{"missing_decision", DecisionInput{AuctionID: id, ParticipantID: pid, Round: 1}, auctionerrors.ErrValidation},
		{"unknown_decision", DecisionInput{AuctionID: id, ParticipantID: pid, Round: 1, Decision: "maybe"}, auctionerrors.ErrValidation},
		{"unknown_auction", DecisionInput{AuctionID: "nope", ParticipantID: pid, Round: 1, Decision: model.DecisionAccept}, auctionerrors.ErrAuctionNotFound},
		{"unknown_participant", DecisionInput{AuctionID: id, ParticipantID: "nope", Round: 1, Decision: model.DecisionAccept}, auctionerrors.ErrParticipantNotFound},
		{"future_round", DecisionInput{AuctionID: id, ParticipantID: pid, Round: 2, Decision: model.DecisionAccept}, auctionerrors.ErrStaleRound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitDecision(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.expectedError)
		})
	}

	require.Empty(t, f.snapshot(t, id).Bids)
}

func TestSubmitDecision_ParticipantOfAnotherAuction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	first := f.started(t, 3, "1000.00")
	second := f.started(t, 3, "1000.00")

	_, err := f.svc.SubmitDecision(context.Background(), DecisionInput{
		AuctionID:     first.Auction.AuctionID,
		ParticipantID: ids(second)[0],
		Round:         1,
		Decision:      model.DecisionAccept,
	})
	require.ErrorIs(t, err, auctionerrors.ErrNotFound)
}

func TestSubmitDecision_BeforeStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.pending(t, 3)
	_, err := f.svc.SubmitDecision(context.Background(), DecisionInput{
		AuctionID:     snap.Auction.AuctionID,
		ParticipantID: ids(snap)[0],
		Round:         1,
		Decision:      model.DecisionAccept,
	})
	require.ErrorIs(t, err, auctionerrors.ErrInvalidTransition)
}

func TestSubmitDecision_RoundStaysOpenUntilEveryoneDecides(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 3, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)

	res := f.decide(t, id, p[0], 1, model.DecisionAccept)
	require.Equal(t, OutcomeRecorded, res.Outcome)
	require.False(t, res.Duplicate)
	require.True(t, res.Bid.OfferedPrice.Equal(price("1000")))
	require.Equal(t, model.DecisionAccept, res.Bid.Decision)
	require.Equal(t, baseTime, res.Bid.DecidedAt)

	res = f.decide(t, id, p[1], 1, model.DecisionDecline)
	require.Equal(t, OutcomeRecorded, res.Outcome)

	got := f.snapshot(t, id)
	require.Equal(t, 1, got.Auction.CurrentRound)
	require.Equal(t, 2, got.ActiveCount())
	eliminated, _ := got.Participant(p[1])
	require.NotNil(t, eliminated.EliminatedAt)
	require.Equal(t, 1, *eliminated.EliminatedRound)
	require.Equal(t, []string{p[2]}, got.PendingFor(1))

	res = f.decide(t, id, p[2], 1, model.DecisionAccept)
	require.Equal(t, OutcomeAdvanced, res.Outcome)
	require.Equal(t, 2, res.Auction.CurrentRound)
	require.True(t, res.Auction.CurrentPrice.Equal(price("950.00")))

	advanced := f.events.ofType(events.RoundAdvanced)
	require.Len(t, advanced, 1)
	require.Equal(t, 2, advanced[0].Round)
	require.True(t, advanced[0].Price.Equal(price("950")))

	eliminatedEvents := f.events.ofType(events.ParticipantEliminated)
	require.Len(t, eliminatedEvents, 1)
	require.Equal(t, p[1], eliminatedEvents[0].ParticipantID)
	require.Equal(t, 1, eliminatedEvents[0].Round)
}

// Five participants, four decline in the opening round and the fifth accepts.
func TestSubmitDecision_FourDeclinesThenAcceptInOneRound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 5, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)

	for _, pid := range p[:4] {
		res := f.decide(t, id, pid, 1, model.DecisionDecline)
		require.Equal(t, OutcomeRecorded, res.Outcome)
	}
	res := f.decide(t, id, p[4], 1, model.DecisionAccept)
	require.Equal(t, OutcomeCompleted, res.Outcome)

	assertWinner(t, f, id, p[4], "1000.00")
}

// Five participants, one declines per round for rounds 1 to 4 while the rest
// accept, leaving the fifth as winner at the round 4 price.
func TestSubmitDecision_OneDeclinePerRound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 5, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)
	expectedPrices := []string{"1000.00", "950.00", "902.50", "857.38"}

	for round := 1; round <= 4; round++ {
		got := f.snapshot(t, id)
		require.Equal(t, round, got.Auction.CurrentRound)
		require.True(t, got.Auction.CurrentPrice.Equal(price(expectedPrices[round-1])), "round %d price %s", round, got.Auction.CurrentPrice)

		var last DecisionResult
		for i := round - 1; i < len(p); i++ {
			decision := model.DecisionAccept
			if i == round-1 {
				decision = model.DecisionDecline
			}
			last = f.decide(t, id, p[i], round, decision)
		}
		if round < 4 {
			require.Equal(t, OutcomeAdvanced, last.Outcome)
		} else {
			require.Equal(t, OutcomeCompleted, last.Outcome)
		}
	}

	assertWinner(t, f, id, p[4], "857.38")
	require.Len(t, f.events.ofType(events.RoundAdvanced), 3)
}

func assertWinner(t *testing.T, f *fixture, auctionID, winnerID, finalPrice string) {
	t.Helper()

	got := f.snapshot(t, auctionID)
	a := got.Auction
	require.Equal(t, model.StatusCompleted, a.Status)
	require.NotNil(t, a.WinnerID)
	require.Equal(t, winnerID, *a.WinnerID)
	require.NotNil(t, a.FinalPrice)
	require.True(t, a.FinalPrice.Equal(price(finalPrice)), "final price %s", a.FinalPrice)
	require.Equal(t, 1, got.ActiveCount())

	winners := 0
	for _, p := range got.Participants {
		if p.IsWinner {
			winners++
			require.Equal(t, winnerID, p.ParticipantID)
			require.True(t, p.IsActive())
		}
	}
	require.Equal(t, 1, winners)

	completed := f.events.ofType(events.AuctionCompleted)
	require.Len(t, completed, 1)
	require.Equal(t, winnerID, completed[0].WinnerID)
	require.True(t, completed[0].FinalPrice.Equal(price(finalPrice)))
}

func TestSubmitDecision_AllDeclineFailsTheAuction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 4, "1000.00")
	id := snap.Auction.AuctionID

	var last DecisionResult
	for _, pid := range ids(snap) {
		last = f.decide(t, id, pid, 1, model.DecisionDecline)
	}
	require.Equal(t, OutcomeFailed, last.Outcome)

	a := f.snapshot(t, id).Auction
	require.Equal(t, model.StatusFailed, a.Status)
	require.Equal(t, model.FailureAllDeclined, a.FailureReason)
	require.Nil(t, a.WinnerID)
	require.Nil(t, a.FinalPrice)

	failed := f.events.ofType(events.AuctionFailed)
	require.Len(t, failed, 1)
	require.Equal(t, model.FailureAllDeclined, failed[0].Reason)
}

func TestSubmitDecision_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 3, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)

	first := f.decide(t, id, p[0], 1, model.DecisionDecline)
	before := f.snapshot(t, id)

	second := f.decide(t, id, p[0], 1, model.DecisionDecline)
	require.True(t, second.Duplicate)
	require.Equal(t, OutcomeDuplicate, second.Outcome)
	require.Equal(t, first.Bid, second.Bid)

	// a retry with a different decision still reports the stored one
	third := f.decide(t, id, p[0], 1, model.DecisionAccept)
	require.Equal(t, first.Bid, third.Bid)

	after := f.snapshot(t, id)
	require.Equal(t, before.Auction.Version, after.Auction.Version)
	require.Len(t, after.Bids, 1)
	require.Len(t, f.events.ofType(events.ParticipantEliminated), 1)

	// the round-closing decision replayed must not advance twice
	f.decide(t, id, p[1], 1, model.DecisionAccept)
	closing := f.decide(t, id, p[2], 1, model.DecisionAccept)
	require.Equal(t, OutcomeAdvanced, closing.Outcome)
	replay := f.decide(t, id, p[2], 1, model.DecisionAccept)
	require.True(t, replay.Duplicate)
	require.Equal(t, OutcomeDuplicate, replay.Outcome)
	require.Equal(t, closing.Bid, replay.Bid)
	require.Equal(t, 2, replay.Auction.CurrentRound)

	// once the round closed, only the identical decision counts as a retry
	_, err := f.svc.SubmitDecision(context.Background(), DecisionInput{AuctionID: id, ParticipantID: p[2], Round: 1, Decision: model.DecisionDecline})
	require.ErrorIs(t, err, auctionerrors.ErrStaleRound)
	require.Equal(t, 2, f.snapshot(t, id).Auction.CurrentRound)
	require.Len(t, f.events.ofType(events.RoundAdvanced), 1)
}

func TestSubmitDecision_StaleRoundRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	snap := f.started(t, 4, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)
	f.decide(t, id, p[0], 1, model.DecisionDecline)
	for _, pid := range p[1:] {
		f.decide(t, id, pid, 1, model.DecisionAccept)
	}
	before := f.snapshot(t, id)
	require.Equal(t, 2, before.Auction.CurrentRound)

	_, err := f.svc.SubmitDecision(ctx, DecisionInput{AuctionID: id, ParticipantID: p[1], Round: 1, Decision: model.DecisionDecline})
	require.ErrorIs(t, err, auctionerrors.ErrStaleRound)
	require.ErrorIs(t, err, auctionerrors.ErrStateConflict)

	// eliminated in round 1, so nothing to say in round 2
	_, err = f.svc.SubmitDecision(ctx, DecisionInput{AuctionID: id, ParticipantID: p[0], Round: 2, Decision: model.DecisionAccept})
	require.ErrorIs(t, err, auctionerrors.ErrAlreadyEliminated)

	after := f.snapshot(t, id)
	require.Equal(t, before.Auction.Version, after.Auction.Version)
	require.Equal(t, before.Bids, after.Bids)
}

func TestSubmitDecision_PriceNeverIncreases(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 3, "1234.56")
	id := snap.Auction.AuctionID
	require.True(t, snap.Auction.CurrentPrice.Equal(snap.Auction.StartingPrice))

	previous := snap.Auction.CurrentPrice
	for round := 1; round <= 12; round++ {
		for _, pid := range ids(snap) {
			f.decide(t, id, pid, round, model.DecisionAccept)
		}
		a := f.snapshot(t, id).Auction
		require.Equal(t, round+1, a.CurrentRound)
		require.True(t, a.CurrentPrice.LessThan(previous))
		require.True(t, a.CurrentPrice.LessThanOrEqual(a.StartingPrice))
		previous = a.CurrentPrice
	}
}

func TestSubmitDecision_PriceFloorFailsTheAuction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 3, "0.02")
	id := snap.Auction.AuctionID

	for _, pid := range ids(snap) {
		f.decide(t, id, pid, 1, model.DecisionAccept)
	}
	require.True(t, f.snapshot(t, id).Auction.CurrentPrice.Equal(price("0.01")))

	var last DecisionResult
	for _, pid := range ids(snap) {
		last = f.decide(t, id, pid, 2, model.DecisionAccept)
	}
	require.Equal(t, OutcomeFailed, last.Outcome)

	a := f.snapshot(t, id).Auction
	require.Equal(t, model.StatusFailed, a.Status)
	require.Equal(t, model.FailurePriceFloor, a.FailureReason)
	require.Nil(t, a.WinnerID)
}

func TestSubmitDecision_ConcurrentDecisionsCloseRoundOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 10, "1000.00")
	id := snap.Auction.AuctionID

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 10)
	for _, pid := range ids(snap) {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			res, err := f.svc.SubmitDecision(context.Background(), DecisionInput{AuctionID: id, ParticipantID: pid, Round: 1, Decision: model.DecisionAccept})
			if err == nil {
				outcomes <- res.Outcome
			}
		}(pid)
	}
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	require.Equal(t, 9, counts[OutcomeRecorded])
	require.Equal(t, 1, counts[OutcomeAdvanced])

	got := f.snapshot(t, id)
	require.Equal(t, 2, got.Auction.CurrentRound)
	require.Len(t, got.BidsForRound(1), 10)
	require.Len(t, f.events.ofType(events.RoundAdvanced), 1)
}

func TestSubmitDecision_ConcurrentDeclinesCrownOneWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap := f.started(t, 8, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)

	var wg sync.WaitGroup
	errs := make(chan error, len(p))
	for i, pid := range p {
		decision := model.DecisionDecline
		if i == 5 {
			decision = model.DecisionAccept
		}
		wg.Add(1)
		go func(pid string, d model.Decision) {
			defer wg.Done()
			_, err := f.svc.SubmitDecision(context.Background(), DecisionInput{AuctionID: id, ParticipantID: pid, Round: 1, Decision: d})
			errs <- err
		}(pid, decision)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assertWinner(t, f, id, p[5], "1000.00")
}
