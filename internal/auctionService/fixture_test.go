package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"reverse-auction/internal/clock"
	"reverse-auction/internal/events"
	model "reverse-auction/internal/models"
	"reverse-auction/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc    *AuctionService
	repo   *repository.MemoryRepo
	clock  *clock.Fake
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:   repository.NewMemoryRepo(),
		clock:  clock.NewFake(baseTime),
		events: &recorder{},
	}
	f.svc = NewAuctionService(f.repo, f.events, WithClock(f.clock))
	return f
}

func validInput(n int, price string) CreateAuctionInput {
	translators := make([]string, n)
	for i := range translators {
		translators[i] = "translator-" + string(rune('a'+i))
	}
	return CreateAuctionInput{
		SourceLanguage: "en",
		TargetLanguage: "de",
		WordCount:      2400,
		Description:    "Quarterly report for the supervisory board",
		StartingPrice:  decimal.RequireFromString(price),
		TranslatorIDs:  translators,
	}
}

// pending creates an auction of n participants and invites them
func (f *fixture) pending(t *testing.T, n int) model.Snapshot {
	t.Helper()
	ctx := context.Background()

	snap, err := f.svc.CreateAuction(ctx, validInput(n, "1000.00"))
	require.NoError(t, err)
	snap, err = f.svc.InviteParticipants(ctx, snap.Auction.AuctionID)
	require.NoError(t, err)
	return snap
}

// started creates, confirms every participant and starts an auction
func (f *fixture) started(t *testing.T, n int, price string) model.Snapshot {
	t.Helper()
	ctx := context.Background()

	snap, err := f.svc.CreateAuction(ctx, validInput(n, price))
	require.NoError(t, err)
	id := snap.Auction.AuctionID
	_, err = f.svc.InviteParticipants(ctx, id)
	require.NoError(t, err)
	for _, p := range snap.Participants {
		_, err = f.svc.ConfirmParticipant(ctx, id, p.ParticipantID)
		require.NoError(t, err)
	}
	_, err = f.svc.StartAuction(ctx, id)
	require.NoError(t, err)
	return f.snapshot(t, id)
}

func (f *fixture) snapshot(t *testing.T, auctionID string) model.Snapshot {
	t.Helper()
	snap, err := f.repo.GetSnapshot(context.Background(), auctionID)
	require.NoError(t, err)
	return snap
}

func (f *fixture) decide(t *testing.T, auctionID, participantID string, round int, d model.Decision) DecisionResult {
	t.Helper()
	res, err := f.svc.SubmitDecision(context.Background(), DecisionInput{
		AuctionID:     auctionID,
		ParticipantID: participantID,
		Round:         round,
		Decision:      d,
	})
	require.NoError(t, err)
	return res
}

func ids(snap model.Snapshot) []string {
	out := make([]string, len(snap.Participants))
	for i, p := range snap.Participants {
		out[i] = p.ParticipantID
	}
	return out
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
