package auction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"reverse-auction/internal/auctionerrors"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"
	"reverse-auction/utils"
)

// MarkConfirmed confirms a participant looked up by id alone
func (s *AuctionService) MarkConfirmed(ctx context.Context, participantID string) (model.Participant, error) {
	if participantID == "" {
		return model.Participant{}, fmt.Errorf("service: %w - empty participant ID", auctionerrors.ErrValidation)
	}

	p, err := s.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return model.Participant{}, fmt.Errorf("service: failed to get participant %s: %w", participantID, err)
	}
	return s.ConfirmParticipant(ctx, p.AuctionID, participantID)
}

// ConfirmParticipant confirms the invitation of a participant of the given
// auction. It is rejected when the auction is not pending start, the window has
// closed or the participant already confirmed.
func (s *AuctionService) ConfirmParticipant(ctx context.Context, auctionID, participantID string) (model.Participant, error) {
	if auctionID == "" || participantID == "" {
		return model.Participant{}, fmt.Errorf("service: %w - missing auctionID or participantID", auctionerrors.ErrValidation)
	}

	var confirmed model.Participant
	snap, err := s.apply(ctx, auctionID, func(snap *model.Snapshot, now time.Time) ([]events.Event, error) {
		p, ok := snap.Participant(participantID)
		if !ok {
			return nil, fmt.Errorf("participant %s in auction %s: %w", participantID, auctionID, auctionerrors.ErrParticipantNotFound)
		}
		a := snap.Auction
		if a.Status != model.StatusPendingStart {
			return nil, fmt.Errorf("confirm while %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
		}
		if p.IsConfirmed() {
			return nil, fmt.Errorf("participant %s: %w", participantID, auctionerrors.ErrAlreadyConfirmed)
		}
		if a.ConfirmationDeadline != nil && now.After(*a.ConfirmationDeadline) {
			return nil, auctionerrors.ErrConfirmationClosed
		}

		p.ConfirmedAt = &now
		confirmed = *p

		e := s.newEvent(events.ParticipantConfirmed, a, now)
		e.ParticipantID = participantID
		return []events.Event{e}, nil
	})
	if err != nil {
		return model.Participant{}, fmt.Errorf("service: failed to confirm participant %s: %w", participantID, err)
	}

	utils.Info("participant confirmed", map[string]any{
		"auction_id":     auctionID,
		"participant_id": participantID,
		"confirmed":      snap.ConfirmedCount(),
	})
	return confirmed, nil
}

// ConfirmedCount returns how many participants confirmed their invitation
func (s *AuctionService) ConfirmedCount(ctx context.Context, auctionID string) (int, error) {
	snap, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	return snap.ConfirmedCount(), nil
}

// ActiveCount returns how many participants have not been eliminated
func (s *AuctionService) ActiveCount(ctx context.Context, auctionID string) (int, error) {
	snap, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	return snap.ActiveCount(), nil
}

// IsActive reports whether the participant is still in the running
func (s *AuctionService) IsActive(ctx context.Context, participantID string) (bool, error) {
	if participantID == "" {
		return false, fmt.Errorf("service: %w - empty participant ID", auctionerrors.ErrValidation)
	}

	p, err := s.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return false, fmt.Errorf("service: failed to get participant %s: %w", participantID, err)
	}
	return p.IsActive(), nil
}

// ListParticipants returns the roster of an auction ordered by position
func (s *AuctionService) ListParticipants(ctx context.Context, auctionID string) ([]model.Participant, error) {
	snap, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	out := append([]model.Participant(nil), snap.Participants...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}
