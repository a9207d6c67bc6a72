package referral

import (
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// CodeLength is the length of a referral code.
const CodeLength = 8

// CodeFor derives a referral code from a user id. attempt > 0 yields
// alternates used after a collision.
func CodeFor(userID string, attempt int) string {
	seed := userID
	if attempt > 0 {
		seed += ":" + strconv.Itoa(attempt)
	}
	h := sha256.Sum256([]byte(seed))
	return base58.Encode(h[:])[:CodeLength]
}

// NormalizeCode trims whitespace. Codes are case-sensitive base58.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// ValidCode reports whether code has the shape of a referral code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	_, err := base58.Decode(code)
	return err == nil
}
