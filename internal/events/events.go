// Package events defines the notifications the auction core emits after each
// committed transition and the publishers that deliver them. Delivery is best
// effort: the core never retries a failed publish.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reverse-auction/utils"

	"github.com/shopspring/decimal"
)

// Type names an auction event
type Type string

const (
	ParticipantsInvited   Type = "participants_invited"
	ParticipantConfirmed  Type = "participant_confirmed"
	AuctionStarted        Type = "auction_started"
	RoundAdvanced         Type = "round_advanced"
	ParticipantEliminated Type = "participant_eliminated"
	AuctionCompleted      Type = "auction_completed"
	AuctionFailed         Type = "auction_failed"
	AuctionCancelled      Type = "auction_cancelled"
)

// IsTerminal reports whether the event ends the auction
func (t Type) IsTerminal() bool {
	return t == AuctionCompleted || t == AuctionFailed || t == AuctionCancelled
}

// Event is one committed fact about an auction
type Event struct {
	EventID       string           `json:"event_id"`
	Type          Type             `json:"type"`
	AuctionID     string           `json:"auction_id"`
	Round         int              `json:"round,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	ParticipantID string           `json:"participant_id,omitempty"`
	WinnerID      string           `json:"winner_id,omitempty"`
	FinalPrice    *decimal.Decimal `json:"final_price,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
	// Deadline is when the opened round or confirmation window closes.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Publisher delivers events to one collaborator
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Fanout delivers every event to all registered publishers. A failing publisher
// does not stop delivery to the others.
type Fanout struct {
	mu         sync.RWMutex
	publishers []Publisher
}

// NewFanout creates a fan-out over the given publishers
func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

// Add registers another publisher
func (f *Fanout) Add(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishers = append(f.publishers, p)
}

// Publish delivers e to every publisher and joins their errors
func (f *Fanout) Publish(ctx context.Context, e Event) error {
	f.mu.RLock()
	publishers := append([]Publisher(nil), f.publishers...)
	f.mu.RUnlock()

	var errs []error
	for _, p := range publishers {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("publish %s for auction %s: %w", e.Type, e.AuctionID, err))
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes every event to the structured log
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e Event) error {
	fields := map[string]any{
		"event_id":   e.EventID,
		"event_type": string(e.Type),
		"auction_id": e.AuctionID,
	}
	if e.Round > 0 {
		fields["round"] = e.Round
	}
	if e.Price != nil {
		fields["price"] = e.Price.StringFixed(2)
	}
	if e.ParticipantID != "" {
		fields["participant_id"] = e.ParticipantID
	}
	if e.WinnerID != "" {
		fields["winner_id"] = e.WinnerID
	}
	if e.FinalPrice != nil {
		fields["final_price"] = e.FinalPrice.StringFixed(2)
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	utils.Info("auction event", fields)
	return nil
}
