// Package joincode generates the short URL-safe tokens rooms are joined
// by, plus longer unique ids for rooms and chat messages.
package joincode

import (
	"crypto/rand"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// CodeLength is the length of a room join code
const CodeLength = 8

// New returns a fresh 8-character join code. Uniqueness is enforced by
// the store's unique constraint; callers retry on collision.
func New() string {
	return token(CodeLength)
}

// NewID returns a 16-character random id for rooms and chat messages
func NewID() string {
	return token(16)
}

func token(n int) string {
	// Bytes at or above the largest multiple of 36 below 256 are
	// rejected so every alphabet character is equally likely.
	const limit = 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("joincode: failed to read random bytes: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
