package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reverse-auction/internal/accesstoken"
	auction "reverse-auction/internal/auctionService"
	"reverse-auction/internal/clock"
	"reverse-auction/internal/events"
	"reverse-auction/internal/repository"
	"reverse-auction/internal/server"
	"reverse-auction/internal/supervisor"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// testEnv is a full stack on an in-memory repository and a fake clock
type testEnv struct {
	router *gin.Engine
	clock  *clock.Fake
}

// SetupTestEnv wires the service, timeout supervisor and router the way main does
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFake(baseTime)
	fanout := events.NewFanout()
	service := auction.NewAuctionService(repository.NewMemoryRepo(), fanout, auction.WithClock(clk))

	timeouts := supervisor.NewTimeoutSupervisor(service, clk, time.Second)
	fanout.Add(timeouts)
	t.Cleanup(timeouts.Stop)

	tokens, err := accesstoken.NewManager("integration-test-secret", time.Hour, clk.Now)
	require.NoError(t, err)

	return &testEnv{router: server.SetupRouter(service, tokens, nil), clock: clk}
}

// ExecuteRequestAndParse executes an HTTP request on the router and returns the
// decoded envelope. A non-empty token is sent as a bearer token.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any, token string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		var err error
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// data returns the response payload of a successful call
func data(t *testing.T, resp map[string]any, w *httptest.ResponseRecorder, want int) map[string]any {
	t.Helper()
	require.Equal(t, want, w.Code, "body: %s", w.Body.String())
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response data is not an object")
	return d
}

type invitee struct {
	participantID string
	token         string
}

// createAndInvite creates an auction for n translators and returns its id with
// the invitation tokens in position order
func (e *testEnv) createAndInvite(t *testing.T, n int, startingPrice string) (string, []invitee) {
	t.Helper()

	translators := make([]string, n)
	for i := range translators {
		translators[i] = "translator-" + string(rune('a'+i))
	}
	resp, w := ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions", map[string]any{
		"source_language": "es",
		"target_language": "en",
		"word_count":      2500,
		"description":     "User manual for a coffee machine",
		"starting_price":  startingPrice,
		"translator_ids":  translators,
	}, "")
	auctionID := data(t, resp, w, http.StatusCreated)["auction_id"].(string)

	resp, w = ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions/"+auctionID+"/invite", nil, "")
	var out []invitee
	for _, raw := range data(t, resp, w, http.StatusOK)["invitations"].([]any) {
		inv := raw.(map[string]any)
		out = append(out, invitee{participantID: inv["participant_id"].(string), token: inv["access_token"].(string)})
	}
	require.Len(t, out, n)
	return auctionID, out
}

// confirm uses the magic-link form with the token in the query string
func (e *testEnv) confirm(t *testing.T, auctionID string, inv invitee) *httptest.ResponseRecorder {
	t.Helper()
	_, w := ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions/"+auctionID+"/confirm?token="+inv.token, nil, "")
	return w
}

func (e *testEnv) decide(t *testing.T, auctionID string, inv invitee, round int, decision string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, e.router, http.MethodPost, "/auctions/"+auctionID+"/decisions", map[string]any{
		"round":    round,
		"decision": decision,
	}, inv.token)
}

func (e *testEnv) get(t *testing.T, path string) map[string]any {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, e.router, http.MethodGet, path, nil, "")
	return data(t, resp, w, http.StatusOK)
}
