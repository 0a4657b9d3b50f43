package auction

import (
	"context"
	"testing"
	"time"

	"reverse-auction/internal/auctionerrors"
	model "reverse-auction/internal/models"

	"github.com/stretchr/testify/require"
)

func TestAuctionService_RoundState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	pending := f.pending(t, 3)
	state, err := f.svc.RoundState(ctx, pending.Auction.AuctionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingStart, state.Status)
	require.Nil(t, state.Deadline)
	require.Empty(t, state.Pending)

	snap := f.started(t, 3, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)
	f.decide(t, id, p[0], 1, model.DecisionAccept)
	f.clock.Advance(20*time.Second + 400*time.Millisecond)

	state, err = f.svc.RoundState(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, state.Round)
	require.True(t, state.Price.Equal(price("1000")))
	require.Equal(t, baseTime.Add(DefaultRoundDuration), *state.Deadline)
	require.Equal(t, 40, state.SecondsLeft)
	require.ElementsMatch(t, p[1:], state.Pending)
	require.Equal(t, 3, state.ActiveCount)

	// 39.4s left
	f.clock.Advance(200 * time.Millisecond)
	state, err = f.svc.RoundState(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 39, state.SecondsLeft)

	f.clock.Advance(time.Hour)
	state, err = f.svc.RoundState(ctx, id)
	require.NoError(t, err)
	require.Zero(t, state.SecondsLeft)
}

func TestAuctionService_Stats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	snap := f.started(t, 3, "1000.00")
	id, p := snap.Auction.AuctionID, ids(snap)

	stats, err := f.svc.Stats(ctx, id)
	require.NoError(t, err)
	require.True(t, stats.Amount.IsZero())
	require.True(t, stats.Percent.IsZero())

	// three rounds of full acceptance, then two declines
	for round := 1; round <= 3; round++ {
		for _, pid := range p {
			f.decide(t, id, pid, round, model.DecisionAccept)
		}
	}
	f.decide(t, id, p[0], 4, model.DecisionDecline)
	f.decide(t, id, p[1], 4, model.DecisionDecline)
	f.decide(t, id, p[2], 4, model.DecisionAccept)

	stats, err = f.svc.Stats(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, stats.Status)
	require.Equal(t, p[2], *stats.WinnerID)
	require.True(t, stats.FinalPrice.Equal(price("857.38")))
	require.True(t, stats.Amount.Equal(price("142.62")))
	require.True(t, stats.Percent.Equal(price("14.3")))
	require.Equal(t, 4, stats.Rounds)
	require.Equal(t, 12, stats.Bids)
	require.Equal(t, 3, stats.Confirmed)
}

func TestAuctionService_Listing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	draft, err := f.svc.CreateAuction(ctx, validInput(3, "10.00"))
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	running := f.started(t, 3, "10.00")
	id, p := running.Auction.AuctionID, ids(running)

	all, err := f.svc.ListAuctions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, draft.Auction.AuctionID, all[0].AuctionID)

	live, err := f.svc.ListAuctions(ctx, model.StatusInProgress)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, id, live[0].AuctionID)

	_, err = f.svc.ListAuctions(ctx, "paused")
	require.ErrorIs(t, err, auctionerrors.ErrValidation)

	for _, pid := range p {
		f.decide(t, id, pid, 1, model.DecisionAccept)
	}
	f.decide(t, id, p[0], 2, model.DecisionAccept)

	bids, err := f.svc.ListBids(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, bids, 4)

	bids, err = f.svc.ListBids(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.True(t, bids[0].OfferedPrice.Equal(price("9.50")))

	bids, err = f.svc.ListBids(ctx, id, 7)
	require.NoError(t, err)
	require.NotNil(t, bids)
	require.Empty(t, bids)

	_, err = f.svc.ListBids(ctx, id, -1)
	require.ErrorIs(t, err, auctionerrors.ErrValidation)
}
