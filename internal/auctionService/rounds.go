package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reverse-auction/internal/auctionerrors"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"
	"reverse-auction/internal/pricing"
	"reverse-auction/utils"
)

// Outcome tells the caller what a recorded decision did to the auction
type Outcome string

const (
	// OutcomeRecorded means the bid was stored and the round is still open
	OutcomeRecorded  Outcome = "recorded"
	OutcomeAdvanced  Outcome = "round_advanced"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDuplicate means the participant had already decided this round;
	// the earlier bid is returned and nothing changed.
	OutcomeDuplicate Outcome = "duplicate"
)

// DecisionInput is a decision from a pre-verified participant of an auction
type DecisionInput struct {
	AuctionID     string
	ParticipantID string
	Round         int
	Decision      model.Decision
}

func (in DecisionInput) validate() error {
	if in.AuctionID == "" || in.ParticipantID == "" {
		return fmt.Errorf("service: %w - missing auctionID or participantID", auctionerrors.ErrValidation)
	}
	if in.Round < 1 {
		return fmt.Errorf("service: %w - round must be positive", auctionerrors.ErrValidation)
	}
	if !in.Decision.Valid() {
		return fmt.Errorf("service: %w - unknown decision %q", auctionerrors.ErrValidation, in.Decision)
	}
	return nil
}

// DecisionResult is the committed effect of SubmitDecision
type DecisionResult struct {
	Bid       model.Bid     `json:"bid"`
	Outcome   Outcome       `json:"outcome"`
	Duplicate bool          `json:"duplicate"`
	Auction   model.Auction `json:"auction"`
}

// SubmitDecision records one participant's decision for the open round. Recording
// the bid, eliminating the participant and closing the round happen in one
// atomic unit, so only the decision that completes the round resolves it.
//
// A round closes once every participant that entered it has a bid. The auction
// then fails when nobody is left, completes when exactly one participant is left
// and otherwise moves to the next round at a lower price.
func (s *AuctionService) SubmitDecision(ctx context.Context, in DecisionInput) (DecisionResult, error) {
	if err := in.validate(); err != nil {
		return DecisionResult{}, err
	}

	var result DecisionResult
	snap, err := s.apply(ctx, in.AuctionID, func(snap *model.Snapshot, now time.Time) ([]events.Event, error) {
		result = DecisionResult{}
		return s.decide(snap, in, now, &result)
	})
	switch {
	case errors.Is(err, errUnchanged):
		return result, nil
	case err != nil:
		if auctionerrors.IsConflict(err) {
			utils.Debug("decision rejected", map[string]any{
				"auction_id":     in.AuctionID,
				"participant_id": in.ParticipantID,
				"round":          in.Round,
				"error":          err.Error(),
			})
		}
		return DecisionResult{}, fmt.Errorf("service: failed to record decision of participant %s in round %d: %w", in.ParticipantID, in.Round, err)
	}

	result.Auction = snap.Auction
	utils.Info("decision recorded", map[string]any{
		"auction_id":     in.AuctionID,
		"participant_id": in.ParticipantID,
		"round":          in.Round,
		"decision":       string(in.Decision),
		"outcome":        string(result.Outcome),
		"active":         snap.ActiveCount(),
	})
	return result, nil
}

func (s *AuctionService) decide(snap *model.Snapshot, in DecisionInput, now time.Time, result *DecisionResult) ([]events.Event, error) {
	a := &snap.Auction
	p, ok := snap.Participant(in.ParticipantID)
	if !ok {
		return nil, fmt.Errorf("participant %s in auction %s: %w", in.ParticipantID, in.AuctionID, auctionerrors.ErrParticipantNotFound)
	}
	if a.Status == model.StatusDraft || a.Status == model.StatusPendingStart {
		return nil, fmt.Errorf("decide while %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
	}
	// a retry of a recorded decision reports the stored bid, even once its round
	// has closed; a different decision for a closed round is stale
	if prior, ok := snap.BidFor(in.ParticipantID, in.Round); ok && (in.Round == a.CurrentRound || prior.Decision == in.Decision) {
		*result = DecisionResult{Bid: prior, Outcome: OutcomeDuplicate, Duplicate: true, Auction: *a}
		return nil, errUnchanged
	}
	if in.Round != a.CurrentRound {
		return nil, fmt.Errorf("decision for round %d, current round is %d: %w", in.Round, a.CurrentRound, auctionerrors.ErrStaleRound)
	}
	if a.Status.IsTerminal() {
		return nil, fmt.Errorf("decide while %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
	}
	if !p.IsActive() {
		return nil, fmt.Errorf("participant %s: %w", in.ParticipantID, auctionerrors.ErrAlreadyEliminated)
	}

	bid := model.Bid{
		BidID:         utils.GenerateID(),
		AuctionID:     a.AuctionID,
		ParticipantID: p.ParticipantID,
		Round:         a.CurrentRound,
		OfferedPrice:  a.CurrentPrice,
		Decision:      in.Decision,
		DecidedAt:     now,
	}
	snap.Bids = append(snap.Bids, bid)
	result.Bid = bid
	result.Outcome = OutcomeRecorded

	var evs []events.Event
	if in.Decision.Eliminates() {
		eliminate(p, a.CurrentRound, now)
		e := s.newEvent(events.ParticipantEliminated, *a, now)
		e.ParticipantID = p.ParticipantID
		e.Reason = string(in.Decision)
		evs = append(evs, e)
	}

	if len(snap.PendingFor(a.CurrentRound)) > 0 {
		return evs, nil
	}

	closing, outcome := s.closeRound(snap, now)
	result.Outcome = outcome
	return append(evs, closing), nil
}

// closeRound resolves or advances the auction once every entrant of the current
// round has decided
func (s *AuctionService) closeRound(snap *model.Snapshot, now time.Time) (events.Event, Outcome) {
	a := &snap.Auction

	switch snap.ActiveCount() {
	case 0:
		return s.fail(snap, model.FailureAllDeclined, now), OutcomeFailed
	case 1:
		for i := range snap.Participants {
			if snap.Participants[i].IsActive() {
				return s.complete(snap, &snap.Participants[i], now), OutcomeCompleted
			}
		}
	}

	next, err := pricing.NextPrice(a.CurrentPrice)
	if err != nil {
		return s.fail(snap, model.FailurePriceFloor, now), OutcomeFailed
	}
	a.CurrentRound++
	a.CurrentPrice = next
	a.RoundStartedAt = &now
	return s.roundOpenedEvent(events.RoundAdvanced, *a, now), OutcomeAdvanced
}
