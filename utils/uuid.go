package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new time-ordered (v7) identifier, so ids of bids and
// events sort by creation
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
