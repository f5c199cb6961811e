package shortcode

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the URL-safe character set used for short codes
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// Generator produces fixed-length, cryptographically random short codes.
// It is stateless; no uniqueness check is performed here (the unique index
// on links.code is the arbiter, and creation retries on a collision).
type Generator struct {
	length int
}

// New creates a Generator producing codes of the given length
func New(length int) *Generator {
	return &Generator{length: length}
}

// Generate returns a new random code. It fails only if the OS entropy
// source is unavailable.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	// 64-character alphabet: a byte masked to 6 bits indexes it uniformly
	for i, b := range buf {
		buf[i] = Alphabet[b&0x3f]
	}
	return string(buf), nil
}

// Length returns the configured code length
func (g *Generator) Length() int {
	return g.length
}
