package domain

import (
	"regexp"

	"github.com/google/uuid"
)

// Content unit identifiers are nine uppercase alphanumerics, e.g. "K3F9ZQ2MB".
// The short fixed width keeps them citable inline in analysis text.
const unitIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	unitIDPattern  = regexp.MustCompile(`^[A-Z0-9]{9}$`)
	topicIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)
)

// NewUnitID returns a fresh content unit identifier.
func NewUnitID() string {
	raw := uuid.New()
	id := make([]byte, 9)
	for i := range id {
		id[i] = unitIDAlphabet[int(raw[i])%len(unitIDAlphabet)]
	}
	return string(id)
}

// NewEventID returns a fresh tracker event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// IsUnitID reports whether s is a well-formed content unit identifier.
func IsUnitID(s string) bool {
	return unitIDPattern.MatchString(s)
}

// IsTopicID reports whether s is a well-formed topic identifier.
func IsTopicID(s string) bool {
	return topicIDPattern.MatchString(s)
}
