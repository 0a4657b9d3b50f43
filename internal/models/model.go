package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusDraft        AuctionStatus = "draft"
	StatusPendingStart AuctionStatus = "pending_start"
	StatusInProgress   AuctionStatus = "in_progress"
	StatusCompleted    AuctionStatus = "completed"
	StatusFailed       AuctionStatus = "failed"
	StatusCancelled    AuctionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s
func (s AuctionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingStart, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Decision is a participant's answer to the price offered in a round
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
	// DecisionTimeout is recorded by the timeout supervisor, never submitted by a participant.
	DecisionTimeout Decision = "timeout"
)

// Valid reports whether d is a known decision
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionDecline || d == DecisionTimeout
}

// Eliminates reports whether recording d removes the participant from the auction
func (d Decision) Eliminates() bool {
	return d == DecisionDecline || d == DecisionTimeout
}

// Failure reasons recorded on failed auctions
const (
	FailureQuorumNotMet        = "quorum_not_met"
	FailureConfirmationExpired = "confirmation_window_elapsed"
	FailureAllDeclined         = "all_participants_eliminated"
	FailurePriceFloor          = "price_floor_reached"
)

// Auction represents one reverse-auction instance
type Auction struct {
	AuctionID            string           `json:"auction_id"`
	SourceLanguage       string           `json:"source_language"`
	TargetLanguage       string           `json:"target_language"`
	WordCount            int              `json:"word_count"`
	Description          string           `json:"description"`
	StartingPrice        decimal.Decimal  `json:"starting_price"`
	CurrentPrice         decimal.Decimal  `json:"current_price"`
	CurrentRound         int              `json:"current_round"`
	Status               AuctionStatus    `json:"status"`
	WinnerID             *string          `json:"winner_id,omitempty"`
	FinalPrice           *decimal.Decimal `json:"final_price,omitempty"`
	NumParticipants      int              `json:"num_participants"`
	RoundStartedAt       *time.Time       `json:"round_started_at,omitempty"`
	ConfirmationDeadline *time.Time       `json:"confirmation_deadline,omitempty"`
	FailureReason        string           `json:"failure_reason,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	StartedAt            *time.Time       `json:"started_at,omitempty"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	Version              int64            `json:"version"`
}

// Participant represents one invited translator bound to one auction
type Participant struct {
	ParticipantID   string     `json:"participant_id"`
	AuctionID       string     `json:"auction_id"`
	TranslatorID    string     `json:"translator_id"`
	Position        int        `json:"position"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	EliminatedAt    *time.Time `json:"eliminated_at,omitempty"`
	EliminatedRound *int       `json:"eliminated_round,omitempty"`
	IsWinner        bool       `json:"is_winner"`
}

// IsActive reports whether the participant has not been eliminated
func (p Participant) IsActive() bool {
	return p.EliminatedAt == nil
}

// IsConfirmed reports whether the participant confirmed the invitation
func (p Participant) IsConfirmed() bool {
	return p.ConfirmedAt != nil
}

// Bid represents one decision by one participant in one round
type Bid struct {
	BidID         string          `json:"bid_id"`
	AuctionID     string          `json:"auction_id"`
	ParticipantID string          `json:"participant_id"`
	Round         int             `json:"round"`
	OfferedPrice  decimal.Decimal `json:"offered_price"`
	Decision      Decision        `json:"decision"`
	DecidedAt     time.Time       `json:"decided_at"`
}

// Snapshot is an auction together with its participants and bids. It is the unit
// the repository reads and writes atomically.
type Snapshot struct {
	Auction      Auction       `json:"auction"`
	Participants []Participant `json:"participants"`
	Bids         []Bid         `json:"bids"`
}
