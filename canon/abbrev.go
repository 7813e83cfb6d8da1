package canon

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Abbreviate derives a short, git-style content-address for log lines
// and CLI summaries: a 12-hex-character digest of h, taken from a
// SHA3-256 pass over the hash rather than truncating SHA-256 directly,
// so the abbreviation can't be mistaken for a prefix-collision attack
// surface on the integrity hash itself. The integrity hash h remains the
// SHA-256 value computed by ComputeCommitHash/ComputeStateHash; this is
// display only.
func Abbreviate(h Hash) string {
	sum := sha3.Sum256(h[:])
	return hex.EncodeToString(sum[:6])
}
