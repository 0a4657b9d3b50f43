// Package supervisor enforces the round and confirmation deadlines. It forces a
// timeout decision for every participant still silent when a round's time is up,
// using the same decision path as an explicit decline.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reverse-auction/internal/auctionerrors"
	auction "reverse-auction/internal/auctionService"
	"reverse-auction/internal/clock"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"
	"reverse-auction/utils"
)

// AuctionService is the part of the auction core the supervisor drives
type AuctionService interface {
	SubmitDecision(ctx context.Context, in auction.DecisionInput) (auction.DecisionResult, error)
	ExpireConfirmation(ctx context.Context, auctionID string) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Snapshot, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	RoundDuration() time.Duration
}

// TimeoutSupervisor keeps one timer per auction for its next deadline. Timers are
// armed from the events the core publishes, and Reconcile re-arms them from
// storage after a restart.
type TimeoutSupervisor struct {
	svc      AuctionService
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	timers map[string]*deadlineTimer // key: auctionID -> value: pending deadline timer

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTimeoutSupervisor creates a supervisor that polls storage every interval
// while Run is active
func NewTimeoutSupervisor(svc AuctionService, clk clock.Clock, interval time.Duration) *TimeoutSupervisor {
	return &TimeoutSupervisor{
		svc:      svc,
		clock:    clk,
		interval: interval,
		timers:   make(map[string]*deadlineTimer),
		stop:     make(chan struct{}),
	}
}

// Publish arms or disarms the auction's timer. It lets the supervisor sit in the
// event fan-out next to the notifiers.
func (s *TimeoutSupervisor) Publish(ctx context.Context, e events.Event) error {
	switch {
	case e.Type == events.AuctionStarted || e.Type == events.RoundAdvanced:
		if e.Deadline == nil {
			return fmt.Errorf("supervisor: %s event for auction %s has no deadline", e.Type, e.AuctionID)
		}
		auctionID, round := e.AuctionID, e.Round
		s.schedule(auctionID, round, *e.Deadline, func() {
			if _, err := s.SweepRound(context.Background(), auctionID, round); err != nil {
				utils.Error("round timeout sweep failed", map[string]any{
					"auction_id": auctionID,
					"round":      round,
					"error":      err.Error(),
				})
			}
		})
	case e.Type == events.ParticipantsInvited:
		if e.Deadline == nil {
			return fmt.Errorf("supervisor: %s event for auction %s has no deadline", e.Type, e.AuctionID)
		}
		auctionID := e.AuctionID
		s.schedule(auctionID, 0, *e.Deadline, func() {
			if err := s.SweepConfirmation(context.Background(), auctionID); err != nil {
				utils.Error("confirmation expiry failed", map[string]any{
					"auction_id": auctionID,
					"error":      err.Error(),
				})
			}
		})
	case e.Type.IsTerminal():
		s.disarm(e.AuctionID)
	}
	return nil
}

// SweepRound records a timeout for every participant that has not decided in
// the given round once its deadline passed. It does nothing when the round is
// not open or not yet due, and stops as soon as the round is resolved. It
// returns how many timeouts were recorded.
func (s *TimeoutSupervisor) SweepRound(ctx context.Context, auctionID string, round int) (int, error) {
	snap, err := s.svc.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("supervisor: %w", err)
	}
	a := snap.Auction
	if a.Status != model.StatusInProgress || a.CurrentRound != round {
		return 0, nil
	}
	deadline, ok := snap.RoundDeadline(s.svc.RoundDuration())
	if !ok || s.clock.Now().Before(deadline) {
		return 0, nil
	}

	recorded := 0
	for _, participantID := range snap.PendingFor(round) {
		res, err := s.svc.SubmitDecision(ctx, auction.DecisionInput{
			AuctionID:     auctionID,
			ParticipantID: participantID,
			Round:         round,
			Decision:      model.DecisionTimeout,
		})
		if auctionerrors.IsConflict(err) {
			break
		}
		if err != nil {
			return recorded, fmt.Errorf("supervisor: timeout for participant %s: %w", participantID, err)
		}
		if !res.Duplicate {
			recorded++
		}
	}

	if recorded > 0 {
		utils.Info("round timed out", map[string]any{
			"auction_id": auctionID,
			"round":      round,
			"timeouts":   recorded,
		})
	}
	return recorded, nil
}

// SweepConfirmation fails a pending auction whose confirmation window elapsed
// without quorum. Anything else is left alone.
func (s *TimeoutSupervisor) SweepConfirmation(ctx context.Context, auctionID string) error {
	_, err := s.svc.ExpireConfirmation(ctx, auctionID)
	if err == nil || auctionerrors.IsConflict(err) {
		return nil
	}
	return fmt.Errorf("supervisor: %w", err)
}

// Reconcile sweeps every overdue auction and arms timers for the others
func (s *TimeoutSupervisor) Reconcile(ctx context.Context) error {
	now := s.clock.Now()
	var errs []error

	running, err := s.svc.ListAuctions(ctx, model.StatusInProgress)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	for _, a := range running {
		if a.RoundStartedAt == nil {
			continue
		}
		deadline := a.RoundStartedAt.Add(s.svc.RoundDuration())
		if now.Before(deadline) {
			if !s.armed(a.AuctionID) {
				s.arm(events.Event{Type: events.RoundAdvanced, AuctionID: a.AuctionID, Round: a.CurrentRound, Deadline: &deadline})
			}
			continue
		}
		if _, err := s.SweepRound(ctx, a.AuctionID, a.CurrentRound); err != nil {
			errs = append(errs, err)
		}
	}

	pending, err := s.svc.ListAuctions(ctx, model.StatusPendingStart)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("supervisor: %w", err))...)
	}
	for _, a := range pending {
		if a.ConfirmationDeadline == nil {
			continue
		}
		if now.Before(*a.ConfirmationDeadline) {
			if !s.armed(a.AuctionID) {
				s.arm(events.Event{Type: events.ParticipantsInvited, AuctionID: a.AuctionID, Deadline: a.ConfirmationDeadline})
			}
			continue
		}
		if err := s.SweepConfirmation(ctx, a.AuctionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run reconciles on every tick until ctx is done or Stop is called
func (s *TimeoutSupervisor) Run(ctx context.Context) {
	utils.Info("timeout supervisor started", map[string]any{"interval": s.interval.String()})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Reconcile(ctx); err != nil {
			utils.Error("timeout reconcile failed", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends Run and cancels every armed timer
func (s *TimeoutSupervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, t := range s.timers {
			t.timer.Stop()
			delete(s.timers, id)
		}
		utils.Info("timeout supervisor stopped", nil)
	})
}

func (s *TimeoutSupervisor) arm(e events.Event) {
	_ = s.Publish(context.Background(), e)
}

func (s *TimeoutSupervisor) armed(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[auctionID]
	return ok
}

// deadlineTimer is the armed timer of one auction and the round it guards;
// the confirmation window uses round 0
type deadlineTimer struct {
	timer clock.Timer
	round int
}

// schedule replaces the auction's timer with one firing f at the deadline.
// Events arrive after commit and may be reordered, so a timer for an older
// round never replaces a newer one.
func (s *TimeoutSupervisor) schedule(auctionID string, round int, deadline time.Time, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stop:
		return
	default:
	}

	if old, ok := s.timers[auctionID]; ok {
		if old.round > round {
			utils.Debug("ignored deadline of superseded round", map[string]any{
				"auction_id":  auctionID,
				"round":       round,
				"armed_round": old.round,
			})
			return
		}
		old.timer.Stop()
	}

	delay := deadline.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	entry := &deadlineTimer{round: round}
	entry.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[auctionID] == entry {
			delete(s.timers, auctionID)
		}
		s.mu.Unlock()
		f()
	})
	s.timers[auctionID] = entry
}

func (s *TimeoutSupervisor) disarm(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[auctionID]; ok {
		t.timer.Stop()
		delete(s.timers, auctionID)
	}
}
