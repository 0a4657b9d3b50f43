package helpers

import (
	"time"

	auction "reverse-auction/internal/auctionService"
	model "reverse-auction/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type CreateAuctionRequest struct {
	SourceLanguage string          `json:"source_language" binding:"required"`
	TargetLanguage string          `json:"target_language" binding:"required"`
	WordCount      int             `json:"word_count" binding:"required,gt=0"`
	Description    string          `json:"description" binding:"required"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
	TranslatorIDs  []string        `json:"translator_ids" binding:"required,min=3,max=10,dive,required"`
}

type DecisionRequest struct {
	Round    int    `json:"round" binding:"required,gt=0"`
	Decision string `json:"decision" binding:"required,oneof=accept decline"`
}

type AuctionResponse struct {
	AuctionID            string  `json:"auction_id"`
	SourceLanguage       string  `json:"source_language"`
	TargetLanguage       string  `json:"target_language"`
	WordCount            int     `json:"word_count"`
	Description          string  `json:"description"`
	Status               string  `json:"status"`
	StartingPrice        string  `json:"starting_price"`
	CurrentPrice         string  `json:"current_price"`
	CurrentRound         int     `json:"current_round"`
	NumParticipants      int     `json:"num_participants"`
	WinnerID             *string `json:"winner_id"`
	FinalPrice           *string `json:"final_price"`
	FailureReason        string  `json:"failure_reason,omitempty"`
	RoundStartedAt       *string `json:"round_started_at,omitempty"`
	ConfirmationDeadline *string `json:"confirmation_deadline,omitempty"`
	CreatedAt            string  `json:"created_at"`
	StartedAt            *string `json:"started_at,omitempty"`
	CompletedAt          *string `json:"completed_at,omitempty"`
}

type ParticipantResponse struct {
	ParticipantID   string  `json:"participant_id"`
	TranslatorID    string  `json:"translator_id"`
	Position        int     `json:"position"`
	Confirmed       bool    `json:"confirmed"`
	ConfirmedAt     *string `json:"confirmed_at,omitempty"`
	Active          bool    `json:"active"`
	EliminatedRound *int    `json:"eliminated_round,omitempty"`
	IsWinner        bool    `json:"is_winner"`
}

type AuctionDetailResponse struct {
	AuctionResponse
	Participants []ParticipantResponse `json:"participants"`
}

// InvitationResponse carries the magic-link token handed to the notifier
type InvitationResponse struct {
	ParticipantID string `json:"participant_id"`
	TranslatorID  string `json:"translator_id"`
	Position      int    `json:"position"`
	AccessToken   string `json:"access_token"`
}

type InviteResponse struct {
	Auction     AuctionResponse      `json:"auction"`
	Invitations []InvitationResponse `json:"invitations"`
}

type BidResponse struct {
	BidID         string `json:"bid_id"`
	ParticipantID string `json:"participant_id"`
	Round         int    `json:"round"`
	OfferedPrice  string `json:"offered_price"`
	Decision      string `json:"decision"`
	DecidedAt     string `json:"decided_at"`
}

type DecisionResponse struct {
	Bid       BidResponse     `json:"bid"`
	Outcome   string          `json:"outcome"`
	Duplicate bool            `json:"duplicate"`
	Auction   AuctionResponse `json:"auction"`
}

type RoundStateResponse struct {
	AuctionID      string   `json:"auction_id"`
	Status         string   `json:"status"`
	Round          int      `json:"round"`
	Price          string   `json:"price"`
	RoundStartedAt *string  `json:"round_started_at,omitempty"`
	Deadline       *string  `json:"deadline,omitempty"`
	SecondsLeft    int      `json:"seconds_left"`
	Pending        []string `json:"pending_participant_ids"`
	ActiveCount    int      `json:"active_count"`
}

type StatsResponse struct {
	AuctionID      string  `json:"auction_id"`
	Status         string  `json:"status"`
	StartingPrice  string  `json:"starting_price"`
	FinalPrice     *string `json:"final_price"`
	WinnerID       *string `json:"winner_id"`
	Rounds         int     `json:"rounds"`
	Participants   int     `json:"participants"`
	Confirmed      int     `json:"confirmed"`
	Bids           int     `json:"bids"`
	SavingsAmount  string  `json:"savings_amount"`
	SavingsPercent string  `json:"savings_percent"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func timestampPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timestamp(*t)
	return &s
}

func ToAuctionResponse(a model.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:            a.AuctionID,
		SourceLanguage:       a.SourceLanguage,
		TargetLanguage:       a.TargetLanguage,
		WordCount:            a.WordCount,
		Description:          a.Description,
		Status:               string(a.Status),
		StartingPrice:        money(a.StartingPrice),
		CurrentPrice:         money(a.CurrentPrice),
		CurrentRound:         a.CurrentRound,
		NumParticipants:      a.NumParticipants,
		WinnerID:             a.WinnerID,
		FinalPrice:           moneyPtr(a.FinalPrice),
		FailureReason:        a.FailureReason,
		RoundStartedAt:       timestampPtr(a.RoundStartedAt),
		ConfirmationDeadline: timestampPtr(a.ConfirmationDeadline),
		CreatedAt:            timestamp(a.CreatedAt),
		StartedAt:            timestampPtr(a.StartedAt),
		CompletedAt:          timestampPtr(a.CompletedAt),
	}
}

func ToParticipantResponse(p model.Participant) ParticipantResponse {
	return ParticipantResponse{
		ParticipantID:   p.ParticipantID,
		TranslatorID:    p.TranslatorID,
		Position:        p.Position,
		Confirmed:       p.IsConfirmed(),
		ConfirmedAt:     timestampPtr(p.ConfirmedAt),
		Active:          p.IsActive(),
		EliminatedRound: p.EliminatedRound,
		IsWinner:        p.IsWinner,
	}
}

func ToParticipantResponses(ps []model.Participant) []ParticipantResponse {
	out := make([]ParticipantResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToParticipantResponse(p))
	}
	return out
}

func ToAuctionDetailResponse(snap model.Snapshot) AuctionDetailResponse {
	return AuctionDetailResponse{
		AuctionResponse: ToAuctionResponse(snap.Auction),
		Participants:    ToParticipantResponses(snap.Participants),
	}
}

func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:         b.BidID,
		ParticipantID: b.ParticipantID,
		Round:         b.Round,
		OfferedPrice:  money(b.OfferedPrice),
		Decision:      string(b.Decision),
		DecidedAt:     timestamp(b.DecidedAt),
	}
}

func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}

func ToDecisionResponse(res auction.DecisionResult) DecisionResponse {
	return DecisionResponse{
		Bid:       ToBidResponse(res.Bid),
		Outcome:   string(res.Outcome),
		Duplicate: res.Duplicate,
		Auction:   ToAuctionResponse(res.Auction),
	}
}

func ToRoundStateResponse(s auction.RoundState) RoundStateResponse {
	return RoundStateResponse{
		AuctionID:      s.AuctionID,
		Status:         string(s.Status),
		Round:          s.Round,
		Price:          money(s.Price),
		RoundStartedAt: timestampPtr(s.RoundStartedAt),
		Deadline:       timestampPtr(s.Deadline),
		SecondsLeft:    s.SecondsLeft,
		Pending:        s.Pending,
		ActiveCount:    s.ActiveCount,
	}
}

func ToStatsResponse(s auction.AuctionStats) StatsResponse {
	return StatsResponse{
		AuctionID:      s.AuctionID,
		Status:         string(s.Status),
		StartingPrice:  money(s.StartingPrice),
		FinalPrice:     moneyPtr(s.FinalPrice),
		WinnerID:       s.WinnerID,
		Rounds:         s.Rounds,
		Participants:   s.Participants,
		Confirmed:      s.Confirmed,
		Bids:           s.Bids,
		SavingsAmount:  money(s.Amount),
		SavingsPercent: s.Percent.StringFixed(1),
	}
}
