package notes

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/studypal/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each
// field before joining them, so formatting-only edits keep the same hash.
func Normalize(card domain.NoteCard) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	parts := []string{
		normalizePart(card.Topic),
		normalizePart(card.Question),
		normalizePart(card.Answer),
		normalizePart(card.Context),
	}

	// Joined with newlines so adjacent fields can never run together.
	return strings.Join(parts, "\n")
}

// Hash takes a card, normalizes it, and returns its SHA-256 hash as a hex
// string. The hash is the card's identity across repeated source syncs.
func Hash(card domain.NoteCard) string {
	normalized := Normalize(card)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
