package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Tokens bind tracking requests to a recipient. They are drawn from a
// 128-bit random space so that guessing or enumerating them is
// infeasible, and are never derived from recipient data.

const rawLen = 16

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// New issues a fresh opaque token.
func New() (string, error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Valid reports whether s is syntactically a token. It says nothing
// about whether the token was ever issued; resolution happens against
// the recipient store.
func Valid(s string) bool {
	return tokenPattern.MatchString(s)
}
