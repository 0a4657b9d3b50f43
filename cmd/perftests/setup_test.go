package perftests

import (
	"context"
	"fmt"

	auction "reverse-auction/internal/auctionService"
	"reverse-auction/internal/events"
	repository "reverse-auction/internal/repository"

	"github.com/shopspring/decimal"
)

// runningAuction is a started auction with its participants in position order
type runningAuction struct {
	id           string
	participants []string
}

func newService() *auction.AuctionService {
	return auction.NewAuctionService(repository.NewMemoryRepo(), events.NewFanout())
}

// startAuctions creates, invites, confirms and starts n auctions of size participants
func startAuctions(svc *auction.AuctionService, n, size int) ([]runningAuction, error) {
	ctx := context.Background()
	out := make([]runningAuction, 0, n)

	for i := 0; i < n; i++ {
		translators := make([]string, size)
		for j := range translators {
			translators[j] = fmt.Sprintf("translator_%d_%d", i, j)
		}
		snap, err := svc.CreateAuction(ctx, auction.CreateAuctionInput{
			SourceLanguage: "en",
			TargetLanguage: "pt",
			WordCount:      1000 + i,
			Description:    "Benchmark translation job",
			StartingPrice:  decimal.NewFromInt(1000),
			TranslatorIDs:  translators,
		})
		if err != nil {
			return nil, err
		}
		id := snap.Auction.AuctionID
		if _, err := svc.InviteParticipants(ctx, id); err != nil {
			return nil, err
		}

		ra := runningAuction{id: id}
		for _, p := range snap.Participants {
			if _, err := svc.ConfirmParticipant(ctx, id, p.ParticipantID); err != nil {
				return nil, err
			}
			ra.participants = append(ra.participants, p.ParticipantID)
		}
		if _, err := svc.StartAuction(ctx, id); err != nil {
			return nil, err
		}
		out = append(out, ra)
	}
	return out, nil
}
