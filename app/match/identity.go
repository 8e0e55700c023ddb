package match

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IDSize is the number of digest bytes kept in an identifier.
const IDSize = 12

// Identify derives the record identifier from the fields that never change
// for a given match. Kickoff time is left out so that a corrected time still
// maps onto the same record.
func Identify(date, teamA, teamB string) string {
	return digest(date, teamA, teamB)
}

// SubscriberID derives one identifier per distinct device registration.
func SubscriberID(endpoint, p256dh, auth string) string {
	return digest(endpoint, p256dh, auth)
}

// EnsureID keeps an explicit identifier and derives one otherwise.
func EnsureID(explicit string, derive func() string) string {
	if explicit != "" {
		return explicit
	}
	return derive()
}

func digest(fields ...string) string {
	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = norm.NFC.String(strings.TrimSpace(f))
	}

	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:IDSize])
}
