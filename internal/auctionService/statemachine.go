package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reverse-auction/internal/auctionerrors"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"
	"reverse-auction/internal/pricing"
	"reverse-auction/utils"

	"github.com/shopspring/decimal"
)

const minDescriptionLength = 10

// CreateAuctionInput describes a new auction and the translators invited to it
type CreateAuctionInput struct {
	SourceLanguage string
	TargetLanguage string
	WordCount      int
	Description    string
	StartingPrice  decimal.Decimal
	TranslatorIDs  []string
}

func (in CreateAuctionInput) validate() error {
	if strings.TrimSpace(in.SourceLanguage) == "" || strings.TrimSpace(in.TargetLanguage) == "" {
		return fmt.Errorf("service: %w - source and target language are required", auctionerrors.ErrValidation)
	}
	if strings.EqualFold(strings.TrimSpace(in.SourceLanguage), strings.TrimSpace(in.TargetLanguage)) {
		return fmt.Errorf("service: %w - source and target language must differ", auctionerrors.ErrValidation)
	}
	if in.WordCount <= 0 {
		return fmt.Errorf("service: %w - word count must be positive", auctionerrors.ErrValidation)
	}
	if len(strings.TrimSpace(in.Description)) < minDescriptionLength {
		return fmt.Errorf("service: %w - description needs at least %d characters", auctionerrors.ErrValidation, minDescriptionLength)
	}
	if !pricing.ValidStartingPrice(in.StartingPrice) {
		return fmt.Errorf("service: %w - starting price must be positive with at most 2 decimals", auctionerrors.ErrValidation)
	}
	if n := len(in.TranslatorIDs); n < MinParticipants || n > MaxParticipants {
		return fmt.Errorf("service: %w - %d translators invited, need %d to %d", auctionerrors.ErrValidation, n, MinParticipants, MaxParticipants)
	}
	seen := make(map[string]struct{}, len(in.TranslatorIDs))
	for _, id := range in.TranslatorIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("service: %w - empty translator id", auctionerrors.ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("service: %w - translator %s invited twice", auctionerrors.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// CreateAuction stores a draft auction with one participant per translator,
// positioned in the order given
func (s *AuctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (model.Snapshot, error) {
	if err := in.validate(); err != nil {
		return model.Snapshot{}, err
	}

	now := s.clock.Now()
	auctionID := utils.GenerateID()
	snap := model.Snapshot{
		Auction: model.Auction{
			AuctionID:       auctionID,
			SourceLanguage:  strings.TrimSpace(in.SourceLanguage),
			TargetLanguage:  strings.TrimSpace(in.TargetLanguage),
			WordCount:       in.WordCount,
			Description:     strings.TrimSpace(in.Description),
			StartingPrice:   in.StartingPrice,
			CurrentPrice:    in.StartingPrice,
			Status:          model.StatusDraft,
			NumParticipants: len(in.TranslatorIDs),
			CreatedAt:       now,
		},
		Participants: make([]model.Participant, 0, len(in.TranslatorIDs)),
	}
	for i, translatorID := range in.TranslatorIDs {
		snap.Participants = append(snap.Participants, model.Participant{
			ParticipantID: utils.GenerateID(),
			AuctionID:     auctionID,
			TranslatorID:  translatorID,
			Position:      i + 1,
		})
	}

	if err := s.repo.CreateAuction(ctx, snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("service: failed to create auction: %w", err)
	}

	utils.Info("auction created", map[string]any{
		"auction_id":     auctionID,
		"participants":   len(in.TranslatorIDs),
		"starting_price": in.StartingPrice.StringFixed(2),
	})
	return snap, nil
}

// InviteParticipants moves a draft auction to pending_start and opens the
// confirmation window
func (s *AuctionService) InviteParticipants(ctx context.Context, auctionID string) (model.Snapshot, error) {
	if auctionID == "" {
		return model.Snapshot{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrValidation)
	}

	snap, err := s.apply(ctx, auctionID, func(snap *model.Snapshot, now time.Time) ([]events.Event, error) {
		a := &snap.Auction
		if a.Status != model.StatusDraft {
			return nil, fmt.Errorf("invite from %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
		}
		deadline := now.Add(s.confirmationWindow)
		a.Status = model.StatusPendingStart
		a.ConfirmationDeadline = &deadline

		e := s.newEvent(events.ParticipantsInvited, *a, now)
		e.Deadline = &deadline
		return []events.Event{e}, nil
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("service: failed to invite participants of auction %s: %w", auctionID, err)
	}

	utils.Info("participants invited", map[string]any{
		"auction_id":            auctionID,
		"confirmation_deadline": snap.Auction.ConfirmationDeadline,
	})
	return snap, nil
}

// StartAuction opens round 1 at the starting price when at least MinParticipants
// confirmed. Otherwise the auction is failed and ErrQuorumNotMet returned.
// Participants that never confirmed are eliminated before round 1 opens.
func (s *AuctionService) StartAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrValidation)
	}

	var quorumMissed bool
	snap, err := s.apply(ctx, auctionID, func(snap *model.Snapshot, now time.Time) ([]events.Event, error) {
		quorumMissed = false
		a := &snap.Auction
		if a.Status != model.StatusPendingStart {
			return nil, fmt.Errorf("start from %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
		}

		if snap.ConfirmedCount() < MinParticipants {
			quorumMissed = true
			return []events.Event{s.fail(snap, model.FailureQuorumNotMet, now)}, nil
		}

		var evs []events.Event
		for i := range snap.Participants {
			p := &snap.Participants[i]
			if p.IsConfirmed() || !p.IsActive() {
				continue
			}
			eliminate(p, 0, now)
			e := s.newEvent(events.ParticipantEliminated, *a, now)
			e.ParticipantID = p.ParticipantID
			e.Reason = "not_confirmed"
			evs = append(evs, e)
		}

		a.Status = model.StatusInProgress
		a.CurrentRound = 1
		a.CurrentPrice = a.StartingPrice
		a.RoundStartedAt = &now
		a.StartedAt = &now
		return append(evs, s.roundOpenedEvent(events.AuctionStarted, *a, now)), nil
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to start auction %s: %w", auctionID, err)
	}

	if quorumMissed {
		utils.Warn("auction failed to start", map[string]any{
			"auction_id": auctionID,
			"confirmed":  snap.ConfirmedCount(),
		})
		return model.Auction{}, fmt.Errorf("service: auction %s has %d confirmed participants, need %d: %w",
			auctionID, snap.ConfirmedCount(), MinParticipants, auctionerrors.ErrQuorumNotMet)
	}

	utils.Info("auction started", map[string]any{
		"auction_id": auctionID,
		"round":      snap.Auction.CurrentRound,
		"price":      snap.Auction.CurrentPrice.StringFixed(2),
		"active":     snap.ActiveCount(),
	})
	return snap.Auction, nil
}

// ExpireConfirmation fails a pending auction whose confirmation window elapsed
// without reaching quorum
func (s *AuctionService) ExpireConfirmation(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrValidation)
	}

	snap, err := s.apply(ctx, auctionID, func(snap *model.Snapshot, now time.Time) ([]events.Event, error) {
		a := &snap.Auction
		if a.Status != model.StatusPendingStart {
			return nil, fmt.Errorf("expire confirmation from %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
		}
		if a.ConfirmationDeadline == nil || now.Before(*a.ConfirmationDeadline) {
			return nil, auctionerrors.ErrConfirmationPending
		}
		if snap.ConfirmedCount() >= MinParticipants {
			return nil, fmt.Errorf("expire confirmation with quorum met: %w", auctionerrors.ErrInvalidTransition)
		}
		return []events.Event{s.fail(snap, model.FailureConfirmationExpired, now)}, nil
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to expire confirmation of auction %s: %w", auctionID, err)
	}

	utils.Info("confirmation window elapsed", map[string]any{
		"auction_id": auctionID,
		"confirmed":  snap.ConfirmedCount(),
	})
	return snap.Auction, nil
}

// CancelAuction ends a non-terminal auction; there is no way back
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrValidation)
	}

	snap, err := s.apply(ctx, auctionID, func(snap *model.Snapshot, now time.Time) ([]events.Event, error) {
		a := &snap.Auction
		if a.Status.IsTerminal() {
			return nil, fmt.Errorf("cancel from %s: %w", a.Status, auctionerrors.ErrInvalidTransition)
		}
		a.Status = model.StatusCancelled
		a.CompletedAt = &now
		return []events.Event{s.newEvent(events.AuctionCancelled, *a, now)}, nil
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}

	utils.Info("auction cancelled", map[string]any{"auction_id": auctionID})
	return snap.Auction, nil
}

// complete crowns the only remaining active participant at the current price
func (s *AuctionService) complete(snap *model.Snapshot, winner *model.Participant, now time.Time) events.Event {
	a := &snap.Auction
	winnerID := winner.ParticipantID
	finalPrice := a.CurrentPrice

	winner.IsWinner = true
	a.Status = model.StatusCompleted
	a.WinnerID = &winnerID
	a.FinalPrice = &finalPrice
	a.CompletedAt = &now

	e := s.newEvent(events.AuctionCompleted, *a, now)
	e.WinnerID = winnerID
	e.FinalPrice = &finalPrice
	return e
}

func (s *AuctionService) fail(snap *model.Snapshot, reason string, now time.Time) events.Event {
	a := &snap.Auction
	a.Status = model.StatusFailed
	a.FailureReason = reason
	a.CompletedAt = &now

	e := s.newEvent(events.AuctionFailed, *a, now)
	e.Reason = reason
	return e
}

func eliminate(p *model.Participant, round int, now time.Time) {
	r := round
	p.EliminatedAt = &now
	p.EliminatedRound = &r
}
