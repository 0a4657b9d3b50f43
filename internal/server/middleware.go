package server

import (
	"strings"
	"time"

	"reverse-auction/internal/accesstoken"
	"reverse-auction/services/auction/helpers"
	"reverse-auction/utils"

	"github.com/gin-gonic/gin"
)

// TokenVerifier checks a participant access token against the auction in the URL
type TokenVerifier interface {
	VerifyFor(token, auctionID string) (accesstoken.Grant, error)
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	})
}

// ParticipantAuth admits requests carrying a valid access token for the
// :auction_id in the path. The token comes from the Authorization header or,
// for magic links, the token query parameter.
func ParticipantAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")

		grant, err := verifier.VerifyFor(bearerToken(c), auctionID)
		if err != nil {
			helpers.AbortWithError(c, "ParticipantAuth", err, map[string]any{"auction_id": auctionID})
			return
		}

		helpers.SetGrant(c, grant)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return c.Query("token")
}
