package challenge

import (
	"strings"
	"time"
)

// Record is the server-side state of a single challenge issuance for a session.
type Record struct {
	ID           string    `json:"id"`           // UUIDv7 identifying this issuance, for log correlation
	SessionID    string    `json:"sessionId"`    // Caller-supplied session the challenge belongs to
	Generator    string    `json:"generator"`    // Name of the generator that made the puzzle
	Solution     string    `json:"solution"`     // Normalized expected answer, never sent to clients
	Presentation string    `json:"presentation"` // What the user is shown
	Format       string    `json:"format"`       // Media type of Presentation
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Puzzle is the output of a Generator.
type Puzzle struct {
	Presentation string
	Format       string
	Solution     string
}

// Presentation formats.
const (
	FormatSVG   = "image/svg+xml"
	FormatPNG   = "image/png"
	FormatPlain = "text/plain"
)

// Normalize maps user input and solutions to the form they are compared in.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
