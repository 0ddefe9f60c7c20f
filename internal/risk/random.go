package risk

import (
	"math/rand/v2"
	"sync"
)

// RandomSource supplies the randomness used by scoring and generation.
type RandomSource interface {
	// Uniform returns a value in [lo, hi].
	Uniform(lo, hi float64) float64
	// Bernoulli returns true with probability p.
	Bernoulli(p float64) bool
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// Rand is a RandomSource backed by math/rand/v2. Safe for concurrent use.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a seeded source. A zero seed uses the runtime's randomly
// seeded generator.
func NewRand(seed uint64) *Rand {
	if seed == 0 {
		return &Rand{}
	}
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Rand) float() float64 {
	if s.r == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *Rand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.float()
}

func (s *Rand) Bernoulli(p float64) bool {
	return s.float() < p
}

func (s *Rand) IntN(n int) int {
	if s.r == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// ScriptedSource replays fixed values, cycling when exhausted. Empty scripts
// yield the midpoint of the interval, false and 0 respectively. Used for
// deterministic tests and replays.
type ScriptedSource struct {
	mu         sync.Mutex
	Uniforms   []float64
	Bernoullis []bool
	Ints       []int

	ui, bi, ii int
}

func (s *ScriptedSource) Uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Uniforms) == 0 {
		return (lo + hi) / 2
	}
	v := s.Uniforms[s.ui%len(s.Uniforms)]
	s.ui++
	return v
}

func (s *ScriptedSource) Bernoulli(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Bernoullis) == 0 {
		return false
	}
	v := s.Bernoullis[s.bi%len(s.Bernoullis)]
	s.bi++
	return v
}

func (s *ScriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Ints) == 0 || n <= 0 {
		return 0
	}
	v := s.Ints[s.ii%len(s.Ints)]
	s.ii++
	return ((v % n) + n) % n
}
