package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	CodeLength     = 6
	DefaultCodeTTL = 10 * time.Minute

	codeMin = 100000 // smallest 6-digit code
	codeMax = 999999 // largest 6-digit code
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// CodeGenerator produces numeric one-time codes and their expiry
type CodeGenerator struct {
	ttl    time.Duration
	random io.Reader
}

// NewCodeGenerator creates a CodeGenerator backed by crypto/rand
func NewCodeGenerator(ttl time.Duration) *CodeGenerator {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeGenerator{ttl: ttl, random: rand.Reader}
}

// Generate returns a code drawn uniformly from 100000–999999 and an expiry of now+ttl.
// A broken OS random source is not recoverable, so it panics rather than
// handing out a predictable code.
func (g *CodeGenerator) Generate(now time.Time) (string, time.Time) {
	n, err := rand.Int(g.random, codeSpan)
	if err != nil {
		panic(fmt.Sprintf("auth: crypto random source failed: %v", err))
	}

	code := fmt.Sprintf("%0*d", CodeLength, n.Int64()+codeMin)
	return code, now.Add(g.ttl)
}

// TTL returns how long generated codes stay valid
func (g *CodeGenerator) TTL() time.Duration {
	return g.ttl
}
