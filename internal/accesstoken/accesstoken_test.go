package accesstoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	_, err := NewManager("short", time.Hour, nil)
	require.Error(t, err)

	_, err = NewManager(testSecret, 0, nil)
	require.Error(t, err)

	m, err := NewManager(testSecret, time.Hour, nil)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestManager_IssueAndVerify(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(testSecret, 72*time.Hour, fixedNow(issuedAt))
	require.NoError(t, err)

	token, err := m.Issue("participant-1", "auction-1")
	require.NoError(t, err)

	grant, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "participant-1", grant.ParticipantID)
	require.Equal(t, "auction-1", grant.AuctionID)
	require.Equal(t, issuedAt.Add(72*time.Hour), grant.ExpiresAt)

	_, err = m.VerifyFor(token, "auction-1")
	require.NoError(t, err)
	_, err = m.VerifyFor(token, "auction-2")
	require.ErrorIs(t, err, ErrWrongAuction)

	_, err = m.Issue("", "auction-1")
	require.Error(t, err)
}

func TestManager_VerifyRejects(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(testSecret, time.Hour, fixedNow(issuedAt))
	require.NoError(t, err)
	valid, err := m.Issue("participant-1", "auction-1")
	require.NoError(t, err)

	later, err := NewManager(testSecret, time.Hour, fixedNow(issuedAt.Add(2*time.Hour)))
	require.NoError(t, err)
	other, err := NewManager("fedcba9876543210fedcba9876543210", time.Hour, fixedNow(issuedAt))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "participant-1",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
		AuctionID: "auction-1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name          string
		manager       *Manager
		token         string
		expectedError error
	}{
		{"empty", m, "  ", ErrMissingToken},
		{"garbage", m, "not-a-jwt", ErrInvalidToken},
		{"expired", later, valid, ErrExpiredToken},
		{"other_secret", other, valid, ErrInvalidToken},
		{"tampered", m, valid[:len(valid)-2] + "xx", ErrInvalidToken},
		{"alg_none", m, unsigned, ErrInvalidToken},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tc.manager.Verify(tc.token)
			require.ErrorIs(t, err, tc.expectedError)
		})
	}
}
