package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"reverse-auction/internal/auctionerrors"
	model "reverse-auction/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// UpdateFunc mutates a private copy of an auction snapshot. Returning an error
// discards every change made to the copy.
type UpdateFunc func(snap *model.Snapshot) error

// AuctionDB defines the auction storage interface. UpdateAuction is the only
// mutator of an existing auction and applies fn as one atomic unit per auction:
// concurrent updates of the same auction are applied in some serial order.
type AuctionDB interface {
	CreateAuction(ctx context.Context, snap model.Snapshot) error
	GetSnapshot(ctx context.Context, auctionID string) (model.Snapshot, error)
	GetParticipant(ctx context.Context, participantID string) (model.Participant, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	UpdateAuction(ctx context.Context, auctionID string, fn UpdateFunc) (model.Snapshot, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu           sync.RWMutex
	auctions     map[string]model.Snapshot // key: auctionID -> value: committed snapshot
	participants map[string]string         // key: participantID -> value: auctionID
	locks        map[string]*sync.Mutex    // key: auctionID -> value: per-auction write lock
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Snapshot),
		participants: make(map[string]string),
		locks:        make(map[string]*sync.Mutex),
	}
}

// CreateAuction stores a new auction with its participants
func (r *MemoryRepo) CreateAuction(ctx context.Context, snap model.Snapshot) error {
	if snap.Auction.AuctionID == "" {
		return fmt.Errorf("create auction: empty auction id: %w", auctionerrors.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[snap.Auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: already exists: %w", snap.Auction.AuctionID, auctionerrors.ErrStateConflict)
	}
	for _, p := range snap.Participants {
		if _, ok := r.participants[p.ParticipantID]; ok {
			return fmt.Errorf("create auction %s: participant %s already exists: %w", snap.Auction.AuctionID, p.ParticipantID, auctionerrors.ErrStateConflict)
		}
	}

	r.auctions[snap.Auction.AuctionID] = snap.Clone()
	for _, p := range snap.Participants {
		r.participants[p.ParticipantID] = snap.Auction.AuctionID
	}
	r.locks[snap.Auction.AuctionID] = &sync.Mutex{}
	return nil
}

// GetSnapshot returns a copy of the auction with its participants and bids
func (r *MemoryRepo) GetSnapshot(ctx context.Context, auctionID string) (model.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.auctions[auctionID]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return snap.Clone(), nil
}

// GetParticipant returns a participant by id
func (r *MemoryRepo) GetParticipant(ctx context.Context, participantID string) (model.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionID, ok := r.participants[participantID]
	if !ok {
		return model.Participant{}, fmt.Errorf("get participant %s: %w", participantID, auctionerrors.ErrParticipantNotFound)
	}
	snap := r.auctions[auctionID].Clone()
	p, _ := snap.Participant(participantID)
	return *p, nil
}

// ListAuctions returns auctions ordered by creation time; an empty status lists all
func (r *MemoryRepo) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for _, snap := range r.auctions {
		if status != "" && snap.Auction.Status != status {
			continue
		}
		out = append(out, snap.Clone().Auction)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AuctionID < out[j].AuctionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateAuction holds the auction's lock across read-decide-write and commits
// the copy only when fn succeeds
func (r *MemoryRepo) UpdateAuction(ctx context.Context, auctionID string, fn UpdateFunc) (model.Snapshot, error) {
	lock, err := r.lockFor(auctionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, fmt.Errorf("update auction %s: %w", auctionID, err)
	}

	r.mu.RLock()
	working := r.auctions[auctionID].Clone()
	r.mu.RUnlock()

	if err := fn(&working); err != nil {
		return model.Snapshot{}, err
	}
	working.Auction.Version++

	r.mu.Lock()
	r.auctions[auctionID] = working.Clone()
	r.mu.Unlock()

	return working, nil
}

func (r *MemoryRepo) lockFor(auctionID string) (*sync.Mutex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lock, ok := r.locks[auctionID]
	if !ok {
		return nil, fmt.Errorf("update auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return lock, nil
}
