package server

import (
	"net/http"

	"reverse-auction/services/auction/broadcast"
	handler "reverse-auction/services/auction/handler"

	"github.com/gin-gonic/gin"
)

// Tokens issues and verifies participant access tokens
type Tokens interface {
	handler.TokenIssuer
	TokenVerifier
}

// SetupRouter configures all Gin routes for the application. hub may be nil,
// in which case the watch endpoint is not registered.
func SetupRouter(svc handler.AuctionServiceInterface, tokens Tokens, hub *broadcast.Hub) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(svc, tokens)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/invite", auctionHandler.InviteParticipantsHandler)
		auctions.POST("/:auction_id/start", auctionHandler.StartAuctionHandler)
		auctions.POST("/:auction_id/cancel", auctionHandler.CancelAuctionHandler)
		auctions.GET("/:auction_id/participants", auctionHandler.ListParticipantsHandler)
		auctions.GET("/:auction_id/bids", auctionHandler.ListBidsHandler)
		auctions.GET("/:auction_id/round", auctionHandler.RoundStateHandler)
		auctions.GET("/:auction_id/stats", auctionHandler.StatsHandler)

		if hub != nil {
			auctions.GET("/:auction_id/watch", auctionHandler.RequireAuction, hub.ServeWatch)
		}
	}

	// participant actions need the access token from the invitation
	participant := router.Group("/auctions/:auction_id", ParticipantAuth(tokens))
	{
		participant.POST("/confirm", auctionHandler.ConfirmParticipationHandler)
		participant.POST("/decisions", auctionHandler.SubmitDecisionHandler)
	}

	return router
}
