// Package fingerprint derives the stable identity of a pricing request.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidInput is returned when the title or location is empty after
// normalization.
var ErrInvalidInput = eris.New("fingerprint: job title and location are required")

// Normalize canonicalizes a free-text request field: NFC, trimmed, lowercased.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Generate returns the SHA-256 hex fingerprint of the normalized
// (title, location, requester) triple.
func Generate(jobTitle, location string, requesterID int64) (string, error) {
	title := Normalize(jobTitle)
	loc := Normalize(location)
	if title == "" || loc == "" {
		return "", ErrInvalidInput
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", title, loc, requesterID)))
	return fmt.Sprintf("%x", h), nil
}
