// Package captchad contains the version number and shared defaults of captchad.
package captchad

import "time"

// Version is the current version of captchad.
//
// This variable is set at build time using the -X linker flag. If not set,
// it will default to "devel".
var Version = "devel"

// DefaultTTL is how long a challenge can be answered after it was issued.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often expired challenges are evicted from the store.
const DefaultSweepInterval = 5 * time.Minute

// DefaultPassTokenExpiration is how long a pass token minted after a successful
// verification can be redeemed with the siteverify endpoint.
const DefaultPassTokenExpiration = 10 * time.Minute

// APIPrefix is the path the captcha API was historically served under. The
// API is also mounted at the root of the base prefix.
const APIPrefix = "/api/captcha"

// ChallengeKeyPrefix is prepended to session IDs when storing challenge records.
const ChallengeKeyPrefix = "challenge:"

// PassTokenKeyPrefix is prepended to token IDs when storing redeemable pass tokens.
const PassTokenKeyPrefix = "pass:"
