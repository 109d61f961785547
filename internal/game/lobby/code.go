package lobby

import (
	"strings"

	"github.com/tilestrike/arena/internal/game/rng"
)

// codeLength is the number of characters in a lobby code.
const codeLength = 6

// codeCharset is the alphabet lobby codes are drawn from. Codes are stored
// and compared upper-case; lookups normalize first.
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeCode canonicalizes a client-supplied lobby code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// generateCode returns a fresh code not currently in use, by repeated random
// sampling. Termination is bounded only by the 36^6 code space.
//
// Precondition: taken must report membership in the active code set.
// Postcondition: Returns a codeLength-character code for which taken is false.
func generateCode(src rng.Source, taken func(string) bool) string {
	buf := make([]byte, codeLength)
	for {
		for i := range buf {
			buf[i] = codeCharset[src.Intn(len(codeCharset))]
		}
		code := string(buf)
		if !taken(code) {
			return code
		}
	}
}
