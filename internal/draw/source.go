package draw

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"github.com/MJE43/lotto-desk/internal/matrix"
)

// Source yields uniform integers in [0, n).
type Source interface {
	IntN(n int) int
}

// MathSource is a goroutine-safe PCG source.
type MathSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMathSource seeds a PCG generator from crypto/rand.
func NewMathSource() *MathSource {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return NewSeededSource(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))
}

// NewSeededSource returns a deterministic source. Equal seeds give equal draws.
func NewSeededSource(seed1, seed2 uint64) *MathSource {
	return &MathSource{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (s *MathSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// FixedSource replays a fixed sequence of values, wrapping around.
// Each value is reduced modulo n. It is meant for tests and replays.
type FixedSource struct {
	mu     sync.Mutex
	values []int
	pos    int
}

func NewFixedSource(values ...int) *FixedSource {
	return &FixedSource{values: values}
}

func (s *FixedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.pos%len(s.values)]
	s.pos++
	if v < 0 {
		v = -v
	}
	return v % n
}

// Sampler produces a fresh draw for a configuration.
type Sampler interface {
	Sample(cfg matrix.Config) (Draw, error)
}

// ProvenSampler is a Sampler that returns evidence of how each draw was
// produced, such as a seed commitment receipt.
type ProvenSampler interface {
	Sampler
	SampleWithProof(cfg matrix.Config) (Draw, any, error)
}

// SampleWithProof samples from s and returns its proof when s is a
// ProvenSampler. The proof is nil otherwise.
func SampleWithProof(s Sampler, cfg matrix.Config) (Draw, any, error) {
	if ps, ok := s.(ProvenSampler); ok {
		return ps.SampleWithProof(cfg)
	}
	d, err := s.Sample(cfg)
	return d, nil, err
}

// SourceSampler samples every draw from one Source.
type SourceSampler struct {
	Source Source
}

func (s SourceSampler) Sample(cfg matrix.Config) (Draw, error) {
	return Sample(cfg, s.Source)
}
