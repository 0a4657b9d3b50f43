package auction

import (
	"context"
	"errors"
	"time"

	"reverse-auction/internal/clock"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"
	"reverse-auction/internal/repository"
	"reverse-auction/utils"
)

const (
	// MinParticipants is the quorum needed to start and the minimum roster size
	MinParticipants = 3
	// MaxParticipants bounds the roster size at creation
	MaxParticipants = 10

	DefaultRoundDuration      = 60 * time.Second
	DefaultConfirmationWindow = 10 * time.Minute
)

// errUnchanged aborts an update without committing it when the requested
// effect has already been applied
var errUnchanged = errors.New("no change")

// AuctionService runs the auction lifecycle and its rounds. Every mutation goes
// through repository.UpdateAuction so a transition is observed entirely or not at all.
type AuctionService struct {
	repo               repository.AuctionDB
	publisher          events.Publisher
	clock              clock.Clock
	roundDuration      time.Duration
	confirmationWindow time.Duration
}

// Option configures an AuctionService
type Option func(*AuctionService)

// WithClock replaces the wall clock, tests pass a clock.Fake
func WithClock(c clock.Clock) Option {
	return func(s *AuctionService) { s.clock = c }
}

// WithRoundDuration sets how long participants have to decide in each round
func WithRoundDuration(d time.Duration) Option {
	return func(s *AuctionService) {
		if d > 0 {
			s.roundDuration = d
		}
	}
}

// WithConfirmationWindow sets how long invited participants have to confirm
func WithConfirmationWindow(d time.Duration) Option {
	return func(s *AuctionService) {
		if d > 0 {
			s.confirmationWindow = d
		}
	}
}

// NewAuctionService creates a new AuctionService instance. A nil publisher
// drops events.
func NewAuctionService(repo repository.AuctionDB, publisher events.Publisher, opts ...Option) *AuctionService {
	s := &AuctionService{
		repo:               repo,
		publisher:          publisher,
		clock:              clock.Real(),
		roundDuration:      DefaultRoundDuration,
		confirmationWindow: DefaultConfirmationWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoundDuration returns the configured round length
func (s *AuctionService) RoundDuration() time.Duration {
	return s.roundDuration
}

// Now returns the service clock's current time
func (s *AuctionService) Now() time.Time {
	return s.clock.Now()
}

// transitionFunc applies one guarded transition to a private snapshot copy and
// returns the events to emit once it commits. It may run more than once when the
// store retries, so it must only touch snap and its own return values.
type transitionFunc func(snap *model.Snapshot, now time.Time) ([]events.Event, error)

// apply runs fn atomically against the auction and publishes its events after commit
func (s *AuctionService) apply(ctx context.Context, auctionID string, fn transitionFunc) (model.Snapshot, error) {
	now := s.clock.Now()

	var emitted []events.Event
	snap, err := s.repo.UpdateAuction(ctx, auctionID, func(snap *model.Snapshot) error {
		evs, err := fn(snap, now)
		if err != nil {
			return err
		}
		emitted = evs
		return nil
	})
	if err != nil {
		return model.Snapshot{}, err
	}

	s.publish(ctx, emitted)
	return snap, nil
}

// publish hands events to the publisher; failures are logged, never retried
func (s *AuctionService) publish(ctx context.Context, evs []events.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, e); err != nil {
			utils.Warn("failed to deliver auction event", map[string]any{
				"auction_id": e.AuctionID,
				"event_type": string(e.Type),
				"error":      err.Error(),
			})
		}
	}
}

func (s *AuctionService) newEvent(t events.Type, a model.Auction, now time.Time) events.Event {
	return events.Event{
		EventID:    utils.GenerateID(),
		Type:       t,
		AuctionID:  a.AuctionID,
		Round:      a.CurrentRound,
		OccurredAt: now,
	}
}

func (s *AuctionService) roundOpenedEvent(t events.Type, a model.Auction, now time.Time) events.Event {
	e := s.newEvent(t, a, now)
	price := a.CurrentPrice
	deadline := now.Add(s.roundDuration)
	e.Price = &price
	e.Deadline = &deadline
	return e
}
