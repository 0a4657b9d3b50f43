package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	auction "reverse-auction/internal/auctionService"
	model "reverse-auction/internal/models"
	"reverse-auction/services/auction/helpers"
	"reverse-auction/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=auction_handler.go -destination=mock_handler.go -package=handler

type AuctionServiceInterface interface {
	CreateAuction(ctx context.Context, in auction.CreateAuctionInput) (model.Snapshot, error)
	InviteParticipants(ctx context.Context, auctionID string) (model.Snapshot, error)
	ConfirmParticipant(ctx context.Context, auctionID, participantID string) (model.Participant, error)
	StartAuction(ctx context.Context, auctionID string) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID string) (model.Auction, error)
	SubmitDecision(ctx context.Context, in auction.DecisionInput) (auction.DecisionResult, error)
	GetAuction(ctx context.Context, auctionID string) (model.Snapshot, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	ListParticipants(ctx context.Context, auctionID string) ([]model.Participant, error)
	ListBids(ctx context.Context, auctionID string, round int) ([]model.Bid, error)
	RoundState(ctx context.Context, auctionID string) (auction.RoundState, error)
	Stats(ctx context.Context, auctionID string) (auction.AuctionStats, error)
}

// TokenIssuer signs the magic-link token sent to each invited participant
type TokenIssuer interface {
	Issue(participantID, auctionID string) (string, error)
}

type AuctionHandler struct {
	service AuctionServiceInterface
	tokens  TokenIssuer
}

func NewAuctionHandler(service AuctionServiceInterface, tokens TokenIssuer) *AuctionHandler {
	return &AuctionHandler{service: service, tokens: tokens}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	snap, err := h.service.CreateAuction(c.Request.Context(), auction.CreateAuctionInput{
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		WordCount:      req.WordCount,
		Description:    req.Description,
		StartingPrice:  req.StartingPrice,
		TranslatorIDs:  req.TranslatorIDs,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionDetailResponse(snap), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id":   snap.Auction.AuctionID,
		"participants": len(snap.Participants),
	})
}

// ListAuctionsHandler handles GET /auctions?status=
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	status := model.AuctionStatus(c.Query("status"))
	auctions, err := h.service.ListAuctions(c.Request.Context(), status)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"status": string(status)})
		return
	}

	resp := make([]helpers.AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, helpers.ToAuctionResponse(a))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	snap, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionDetailResponse(snap), "auction retrieved successfully")
}

// InviteParticipantsHandler handles POST /auctions/:auction_id/invite. The
// response carries one access token per participant for the notifier to send.
func (h *AuctionHandler) InviteParticipantsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	snap, err := h.service.InviteParticipants(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "InviteParticipantsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	invitations := make([]helpers.InvitationResponse, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		token, err := h.tokens.Issue(p.ParticipantID, auctionID)
		if err != nil {
			helpers.RespondError(c, "InviteParticipantsHandler", fmt.Errorf("issue access token: %w", err), map[string]any{
				"auction_id":     auctionID,
				"participant_id": p.ParticipantID,
			})
			return
		}
		invitations = append(invitations, helpers.InvitationResponse{
			ParticipantID: p.ParticipantID,
			TranslatorID:  p.TranslatorID,
			Position:      p.Position,
			AccessToken:   token,
		})
	}

	resp := helpers.InviteResponse{
		Auction:     helpers.ToAuctionResponse(snap.Auction),
		Invitations: invitations,
	}
	utils.JSONResponse(c, http.StatusOK, resp, "participants invited successfully")
	helpers.LogSuccess("InviteParticipantsHandler", "participants invited successfully", map[string]any{
		"auction_id":  auctionID,
		"invitations": len(invitations),
	})
}

// StartAuctionHandler handles POST /auctions/:auction_id/start
func (h *AuctionHandler) StartAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.StartAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "StartAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction started successfully")
	helpers.LogSuccess("StartAuctionHandler", "auction started successfully", map[string]any{
		"auction_id": auctionID,
		"round":      a.CurrentRound,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.CancelAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction cancelled successfully")
}

// ConfirmParticipationHandler handles POST /auctions/:auction_id/confirm for
// the participant identified by the access token
func (h *AuctionHandler) ConfirmParticipationHandler(c *gin.Context) {
	grant, ok := helpers.GrantFromContext(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errors.New("missing participant grant"), "invalid access token")
		return
	}

	p, err := h.service.ConfirmParticipant(c.Request.Context(), grant.AuctionID, grant.ParticipantID)
	if err != nil {
		helpers.RespondError(c, "ConfirmParticipationHandler", err, map[string]any{
			"auction_id":     grant.AuctionID,
			"participant_id": grant.ParticipantID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToParticipantResponse(p), "participation confirmed successfully")
	helpers.LogSuccess("ConfirmParticipationHandler", "participation confirmed successfully", map[string]any{
		"auction_id":     grant.AuctionID,
		"participant_id": grant.ParticipantID,
	})
}

// SubmitDecisionHandler handles POST /auctions/:auction_id/decisions
func (h *AuctionHandler) SubmitDecisionHandler(c *gin.Context) {
	grant, ok := helpers.GrantFromContext(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errors.New("missing participant grant"), "invalid access token")
		return
	}

	var req helpers.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitDecisionHandler", err)
		return
	}

	res, err := h.service.SubmitDecision(c.Request.Context(), auction.DecisionInput{
		AuctionID:     grant.AuctionID,
		ParticipantID: grant.ParticipantID,
		Round:         req.Round,
		Decision:      model.Decision(req.Decision),
	})
	if err != nil {
		helpers.RespondError(c, "SubmitDecisionHandler", err, map[string]any{
			"auction_id":     grant.AuctionID,
			"participant_id": grant.ParticipantID,
			"round":          req.Round,
		})
		return
	}

	status, message := http.StatusCreated, "decision recorded successfully"
	if res.Duplicate {
		status, message = http.StatusOK, "decision already recorded"
	}
	utils.JSONResponse(c, status, helpers.ToDecisionResponse(res), message)
	helpers.LogSuccess("SubmitDecisionHandler", message, map[string]any{
		"auction_id":     grant.AuctionID,
		"participant_id": grant.ParticipantID,
		"round":          req.Round,
		"outcome":        string(res.Outcome),
	})
}

// ListParticipantsHandler handles GET /auctions/:auction_id/participants
func (h *AuctionHandler) ListParticipantsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	participants, err := h.service.ListParticipants(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "ListParticipantsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToParticipantResponses(participants), "participants retrieved successfully")
}

// ListBidsHandler handles GET /auctions/:auction_id/bids?round=
func (h *AuctionHandler) ListBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	round := 0
	if raw := c.Query("round"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			helpers.HandleBindError(c, "ListBidsHandler", err)
			return
		}
		round = n
	}

	bids, err := h.service.ListBids(c.Request.Context(), auctionID, round)
	if err != nil {
		helpers.RespondError(c, "ListBidsHandler", err, map[string]any{"auction_id": auctionID, "round": round})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
}

// RoundStateHandler handles GET /auctions/:auction_id/round
func (h *AuctionHandler) RoundStateHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	state, err := h.service.RoundState(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "RoundStateHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToRoundStateResponse(state), "round state retrieved successfully")
}

// StatsHandler handles GET /auctions/:auction_id/stats
func (h *AuctionHandler) StatsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	stats, err := h.service.Stats(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "StatsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToStatsResponse(stats), "stats retrieved successfully")
}

// RequireAuction aborts with 404 before streaming handlers when the auction does not exist
func (h *AuctionHandler) RequireAuction(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if _, err := h.service.GetAuction(c.Request.Context(), auctionID); err != nil {
		helpers.AbortWithError(c, "RequireAuction", err, map[string]any{"auction_id": auctionID})
		return
	}
	c.Next()
}
