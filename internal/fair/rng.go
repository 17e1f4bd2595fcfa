// Package fair provides a verifiable draw source. Draws are derived from
// HMAC-SHA256(serverSeed, "clientSeed:nonce:round") so anyone holding the
// revealed server seed can recompute them.
package fair

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// ByteGenerator streams HMAC-SHA256 output, 32 bytes per round.
type ByteGenerator struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	round      uint64
	pos        int
	buffer     [32]byte
}

func NewByteGenerator(serverSeed, clientSeed string, nonce uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte, rolling into a new round when needed.
func (bg *ByteGenerator) Next() byte {
	if bg.pos >= len(bg.buffer) {
		bg.round++
		bg.pos = 0
		bg.generateRound()
	}
	b := bg.buffer[bg.pos]
	bg.pos++
	return b
}

// NextFloat consumes 4 bytes and maps them to [0, 1).
func (bg *ByteGenerator) NextFloat() float64 {
	return bytesToFloat([4]byte{bg.Next(), bg.Next(), bg.Next(), bg.Next()})
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	fmt.Fprintf(h, "%s:%d:%d", bg.clientSeed, bg.nonce, bg.round)
	copy(bg.buffer[:], h.Sum(nil))
}

func bytesToFloat(b [4]byte) float64 {
	result := 0.0
	for i, v := range b {
		result += float64(v) / math.Pow(256, float64(i+1))
	}
	return result
}

// Source adapts a ByteGenerator to draw.Source.
type Source struct {
	gen *ByteGenerator
}

func NewSource(serverSeed, clientSeed string, nonce uint64) *Source {
	return &Source{gen: NewByteGenerator(serverSeed, clientSeed, nonce)}
}

func (s *Source) IntN(n int) int {
	v := int(s.gen.NextFloat() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// HashSeed returns the hex SHA-256 commitment published for a server seed.
func HashSeed(serverSeed string) string {
	h := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(h[:])
}
