package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reverse-auction/internal/accesstoken"
	"reverse-auction/services/auction/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test-secret"

func newManager(t *testing.T, at time.Time) *accesstoken.Manager {
	t.Helper()
	m, err := accesstoken.NewManager(testSecret, time.Hour, func() time.Time { return at })
	require.NoError(t, err)
	return m
}

func TestParticipantAuth(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	issuedAt := time.Now()
	tokens := newManager(t, issuedAt)
	expired := newManager(t, issuedAt.Add(-2*time.Hour))

	router := gin.New()
	router.POST("/auctions/:auction_id/confirm", ParticipantAuth(tokens), func(c *gin.Context) {
		grant, ok := helpers.GrantFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"participant_id": grant.ParticipantID})
	})

	valid, err := tokens.Issue("p1", "a1")
	require.NoError(t, err)
	stale, err := expired.Issue("p1", "a1")
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		header         string
		expectedStatus int
	}{
		{"bearer_header", "/auctions/a1/confirm", "Bearer " + valid, http.StatusOK},
		{"magic_link_query", "/auctions/a1/confirm?token=" + valid, "", http.StatusOK},
		{"missing_token", "/auctions/a1/confirm", "", http.StatusUnauthorized},
		{"garbage_token", "/auctions/a1/confirm", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired_token", "/auctions/a1/confirm", "Bearer " + stale, http.StatusUnauthorized},
		{"other_auction", "/auctions/a2/confirm", "Bearer " + valid, http.StatusForbidden},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if w.Code == http.StatusOK {
				require.Equal(t, "p1", resp["participant_id"])
			}
		})
	}
}

func TestSetupRouter_Health(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := SetupRouter(nil, newManager(t, time.Now()), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	// participant routes reject requests before reaching the service
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auctions/a1/decisions", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
