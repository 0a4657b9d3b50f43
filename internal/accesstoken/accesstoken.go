// Package accesstoken issues and verifies the magic-link tokens participants use
// to act on an auction. A verified token yields the trusted participant and
// auction pair the auction core works with.
package accesstoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reverse-auction/utils"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer         = "reverse-auction"
	minSecretBytes = 16
)

var (
	ErrMissingToken = errors.New("access token is required")
	ErrInvalidToken = errors.New("access token is invalid")
	ErrExpiredToken = errors.New("access token is expired")
	ErrWrongAuction = errors.New("access token belongs to another auction")
)

// Grant is the identity carried by a verified token
type Grant struct {
	ParticipantID string
	AuctionID     string
	ExpiresAt     time.Time
}

// claims is the JWT payload; the subject is the participant id
type claims struct {
	jwt.RegisteredClaims
	AuctionID string `json:"auction_id"`
}

// Manager signs and verifies HS256 access tokens
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a token manager. now defaults to time.Now.
func NewManager(secret string, ttl time.Duration, now func() time.Time) (*Manager, error) {
	if len(strings.TrimSpace(secret)) < minSecretBytes {
		return nil, fmt.Errorf("access token secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue returns a signed token for one participant of one auction
func (m *Manager) Issue(participantID, auctionID string) (string, error) {
	if participantID == "" || auctionID == "" {
		return "", fmt.Errorf("issue access token: missing participantID or auctionID")
	}

	now := m.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        utils.GenerateID(),
		},
		AuctionID: auctionID,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer and expiry of a token and returns its grant
func (m *Manager) Verify(token string) (Grant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Grant{}, ErrMissingToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Grant{}, ErrExpiredToken
		}
		return Grant{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject == "" || parsed.AuctionID == "" {
		return Grant{}, fmt.Errorf("%w: missing subject or auction", ErrInvalidToken)
	}

	return Grant{
		ParticipantID: parsed.Subject,
		AuctionID:     parsed.AuctionID,
		ExpiresAt:     parsed.ExpiresAt.Time.UTC(),
	}, nil
}

// VerifyFor verifies a token and checks that it was issued for auctionID
func (m *Manager) VerifyFor(token, auctionID string) (Grant, error) {
	grant, err := m.Verify(token)
	if err != nil {
		return Grant{}, err
	}
	if grant.AuctionID != auctionID {
		return Grant{}, ErrWrongAuction
	}
	return grant, nil
}
