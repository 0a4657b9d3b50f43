package models

import "time"

// Clone returns a deep copy so callers can mutate it without touching shared state
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Auction: s.Auction}
	out.Auction.WinnerID = clonePtr(s.Auction.WinnerID)
	out.Auction.FinalPrice = clonePtr(s.Auction.FinalPrice)
	out.Auction.RoundStartedAt = clonePtr(s.Auction.RoundStartedAt)
	out.Auction.ConfirmationDeadline = clonePtr(s.Auction.ConfirmationDeadline)
	out.Auction.StartedAt = clonePtr(s.Auction.StartedAt)
	out.Auction.CompletedAt = clonePtr(s.Auction.CompletedAt)

	if s.Participants != nil {
		out.Participants = make([]Participant, len(s.Participants))
		for i, p := range s.Participants {
			p.ConfirmedAt = clonePtr(p.ConfirmedAt)
			p.EliminatedAt = clonePtr(p.EliminatedAt)
			p.EliminatedRound = clonePtr(p.EliminatedRound)
			out.Participants[i] = p
		}
	}
	if s.Bids != nil {
		out.Bids = append([]Bid(nil), s.Bids...)
	}
	return out
}

// Participant returns a pointer into the snapshot for the given participant
func (s *Snapshot) Participant(participantID string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ParticipantID == participantID {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// BidFor returns the bid recorded by a participant in a round, if any
func (s *Snapshot) BidFor(participantID string, round int) (Bid, bool) {
	for _, b := range s.Bids {
		if b.ParticipantID == participantID && b.Round == round {
			return b, true
		}
	}
	return Bid{}, false
}

// BidsForRound returns the bids recorded in a round in decision order
func (s *Snapshot) BidsForRound(round int) []Bid {
	var out []Bid
	for _, b := range s.Bids {
		if b.Round == round {
			out = append(out, b)
		}
	}
	return out
}

// ActiveCount counts participants with no elimination timestamp
func (s *Snapshot) ActiveCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.IsActive() {
			n++
		}
	}
	return n
}

// ConfirmedCount counts participants that confirmed their invitation
func (s *Snapshot) ConfirmedCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.IsConfirmed() {
			n++
		}
	}
	return n
}

// RoundEntrants returns the participants that were active when the round opened:
// still active, or eliminated during that very round.
func (s *Snapshot) RoundEntrants(round int) []Participant {
	var out []Participant
	for _, p := range s.Participants {
		if p.IsActive() || (p.EliminatedRound != nil && *p.EliminatedRound == round) {
			out = append(out, p)
		}
	}
	return out
}

// PendingFor returns the ids of round entrants that have no bid for the round yet
func (s *Snapshot) PendingFor(round int) []string {
	var out []string
	for _, p := range s.RoundEntrants(round) {
		if _, ok := s.BidFor(p.ParticipantID, round); !ok {
			out = append(out, p.ParticipantID)
		}
	}
	return out
}

// RoundDeadline returns when the current round times out, if a round is open
func (s *Snapshot) RoundDeadline(d time.Duration) (time.Time, bool) {
	if s.Auction.RoundStartedAt == nil {
		return time.Time{}, false
	}
	return s.Auction.RoundStartedAt.Add(d), true
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
