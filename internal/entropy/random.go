// Package entropy provides the simulation's random source.
// A single configured seed drives every draw, so runs are reproducible;
// with no seed the source is seeded from crypto/rand and the effective
// seed is reported so a run can still be replayed.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Source is a seeded PRNG. The mutex exists for callers that share one
// source across goroutines (the serial scheduler); sharded schedulers
// derive one source per agent instead of contending on it.
type Source struct {
	seed uint64

	mu sync.Mutex
	r  *mrand.Rand
}

// New creates a source from the given seed. Seed 0 means "no seed": the
// source is seeded from crypto/rand instead.
func New(seed uint64) *Source {
	if seed == 0 {
		seed = cryptoSeed()
	}
	return &Source{
		seed: seed,
		r:    mrand.New(mrand.NewPCG(seed, splitmix(seed))),
	}
}

// Seed returns the effective seed, useful for logging crypto-seeded runs.
func (s *Source) Seed() uint64 {
	return s.seed
}

// Derive returns an independent child source keyed by n. Deriving with
// the same (seed, n) always yields the same stream, which keeps per-agent
// draws stable no matter how agents are sharded across workers.
func (s *Source) Derive(n uint64) *Source {
	child := splitmix(s.seed ^ splitmix(n))
	return &Source{
		seed: child,
		r:    mrand.New(mrand.NewPCG(child, splitmix(child))),
	}
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Uint64 returns a uniform 64-bit draw.
func (s *Source) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Uint64()
}

// IntN returns a uniform draw in [0, n).
func (s *Source) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// Shuffle randomizes the order of n elements via the swap callback.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.Shuffle(n, swap)
}

// splitmix is the SplitMix64 finalizer, used to stretch one seed into
// the two words PCG wants and to decorrelate derived streams.
func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func cryptoSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unheard of; better a fixed
		// fallback than aborting a batch run before it starts.
		return 0x9e3779b97f4a7c15
	}
	n := binary.LittleEndian.Uint64(buf[:])
	if n == 0 {
		n = 1
	}
	return n
}
