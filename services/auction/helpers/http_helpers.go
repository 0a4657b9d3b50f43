package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"reverse-auction/internal/accesstoken"
	"reverse-auction/internal/auctionerrors"
	"reverse-auction/utils"

	"github.com/gin-gonic/gin"
)

// grantKey is the gin context key holding the verified participant grant
const grantKey = "participant_grant"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrParticipantNotFound):
		return http.StatusNotFound, "participant not found"
	case errors.Is(err, auctionerrors.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, auctionerrors.ErrStaleRound):
		return http.StatusConflict, "round already closed"
	case errors.Is(err, auctionerrors.ErrAlreadyEliminated):
		return http.StatusConflict, "participant already eliminated"
	case errors.Is(err, auctionerrors.ErrAlreadyConfirmed):
		return http.StatusConflict, "participant already confirmed"
	case errors.Is(err, auctionerrors.ErrConfirmationClosed):
		return http.StatusConflict, "confirmation window closed"
	case errors.Is(err, auctionerrors.ErrStateConflict):
		return http.StatusConflict, "auction state does not allow this action"
	case errors.Is(err, auctionerrors.ErrQuorumNotMet):
		return http.StatusUnprocessableEntity, "not enough confirmed participants"
	case errors.Is(err, accesstoken.ErrWrongAuction):
		return http.StatusForbidden, "access token not valid for this auction"
	case errors.Is(err, accesstoken.ErrMissingToken),
		errors.Is(err, accesstoken.ErrInvalidToken),
		errors.Is(err, accesstoken.ErrExpiredToken):
		return http.StatusUnauthorized, "invalid access token"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error response and logs it with its fields
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	logRejection(handlerName, status, err, fields)
}

// AbortWithError is RespondError for middleware: later handlers do not run
func AbortWithError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONAbortError(c, status, fmt.Errorf("%s: %w", message, err), message)
	logRejection(handlerName, status, err, fields)
}

func logRejection(handlerName string, status int, err error, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// SetGrant stores the verified participant grant on the request
func SetGrant(c *gin.Context, grant accesstoken.Grant) {
	c.Set(grantKey, grant)
}

// GrantFromContext returns the grant stored by the participant middleware
func GrantFromContext(c *gin.Context) (accesstoken.Grant, bool) {
	v, ok := c.Get(grantKey)
	if !ok {
		return accesstoken.Grant{}, false
	}
	grant, ok := v.(accesstoken.Grant)
	return grant, ok
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
