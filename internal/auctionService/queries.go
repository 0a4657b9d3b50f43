package auction

import (
	"context"
	"fmt"
	"time"

	"reverse-auction/internal/auctionerrors"
	model "reverse-auction/internal/models"
	"reverse-auction/internal/pricing"

	"github.com/shopspring/decimal"
)

// RoundState is a read model of the open round
type RoundState struct {
	AuctionID      string              `json:"auction_id"`
	Status         model.AuctionStatus `json:"status"`
	Round          int                 `json:"round"`
	Price          decimal.Decimal     `json:"price"`
	RoundStartedAt *time.Time          `json:"round_started_at,omitempty"`
	Deadline       *time.Time          `json:"deadline,omitempty"`
	SecondsLeft    int                 `json:"seconds_left"`
	Pending        []string            `json:"pending_participant_ids"`
	ActiveCount    int                 `json:"active_count"`
}

// AuctionStats summarises an auction's result
type AuctionStats struct {
	AuctionID     string              `json:"auction_id"`
	Status        model.AuctionStatus `json:"status"`
	StartingPrice decimal.Decimal     `json:"starting_price"`
	FinalPrice    *decimal.Decimal    `json:"final_price,omitempty"`
	WinnerID      *string             `json:"winner_id,omitempty"`
	Rounds        int                 `json:"rounds"`
	Participants  int                 `json:"participants"`
	Confirmed     int                 `json:"confirmed"`
	Bids          int                 `json:"bids"`
	pricing.Savings
}

// GetAuction returns the auction with its participants and bids
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (model.Snapshot, error) {
	if auctionID == "" {
		return model.Snapshot{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrValidation)
	}

	snap, err := s.repo.GetSnapshot(ctx, auctionID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return snap, nil
}

// ListAuctions returns auctions in creation order, optionally filtered by status
func (s *AuctionService) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", auctionerrors.ErrValidation, status)
	}

	auctions, err := s.repo.ListAuctions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// ListBids returns the bids of an auction in decision order. Round 0 returns all rounds.
func (s *AuctionService) ListBids(ctx context.Context, auctionID string, round int) ([]model.Bid, error) {
	if round < 0 {
		return nil, fmt.Errorf("service: %w - negative round", auctionerrors.ErrValidation)
	}

	snap, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if round == 0 {
		return append([]model.Bid{}, snap.Bids...), nil
	}
	bids := snap.BidsForRound(round)
	if bids == nil {
		bids = []model.Bid{}
	}
	return bids, nil
}

// RoundState describes the open round: its price, deadline and who has yet to decide
func (s *AuctionService) RoundState(ctx context.Context, auctionID string) (RoundState, error) {
	snap, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return RoundState{}, err
	}

	a := snap.Auction
	state := RoundState{
		AuctionID:   a.AuctionID,
		Status:      a.Status,
		Round:       a.CurrentRound,
		Price:       a.CurrentPrice,
		Pending:     []string{},
		ActiveCount: snap.ActiveCount(),
	}
	if a.Status != model.StatusInProgress {
		return state, nil
	}

	state.RoundStartedAt = a.RoundStartedAt
	if deadline, ok := snap.RoundDeadline(s.roundDuration); ok {
		state.Deadline = &deadline
		if left := deadline.Sub(s.clock.Now()); left > 0 {
			state.SecondsLeft = int(left.Round(time.Second) / time.Second)
		}
	}
	if pending := snap.PendingFor(a.CurrentRound); pending != nil {
		state.Pending = pending
	}
	return state, nil
}

// Stats returns the outcome of an auction and how much it saved
func (s *AuctionService) Stats(ctx context.Context, auctionID string) (AuctionStats, error) {
	snap, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return AuctionStats{}, err
	}

	a := snap.Auction
	return AuctionStats{
		AuctionID:     a.AuctionID,
		Status:        a.Status,
		StartingPrice: a.StartingPrice,
		FinalPrice:    a.FinalPrice,
		WinnerID:      a.WinnerID,
		Rounds:        a.CurrentRound,
		Participants:  a.NumParticipants,
		Confirmed:     snap.ConfirmedCount(),
		Bids:          len(snap.Bids),
		Savings:       pricing.CalculateSavings(a.StartingPrice, a.FinalPrice),
	}, nil
}
