package internal

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastHash is a non-cryptographic hash used to identify values in logs and
// metrics without printing them.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}

// SessionHash returns the log-safe form of a caller supplied session ID. Raw
// session IDs and solutions are never logged.
func SessionHash(sessionID string) string {
	if sessionID == "" {
		return ""
	}

	return "s-" + FastHash(sessionID)
}
