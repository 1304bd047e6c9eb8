package util

import "github.com/google/uuid"

// NewID returns a random unique ID.
func NewID() string {
	return uuid.NewString()
}
