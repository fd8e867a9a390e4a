package rng

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math"
)

// Stream generates a deterministic sequence of floats from a seed and a
// label using HMAC-SHA256 in counter mode. Every subsystem draws from its
// own labeled stream, so unrelated draws never interfere: the stat
// generator, each horse's event rolls, and each bias evaluation all own an
// independent stream derived from the same top-level seed.
type Stream struct {
	key   []byte
	label string
	round uint64
	pos   int
	buf   [32]byte
}

// New creates a stream for the given seed and label. Identical (seed, label)
// pairs always produce the identical sequence.
func New(seed int64, label string) *Stream {
	s := &Stream{
		key:   []byte(fmt.Sprintf("%d", seed)),
		label: label,
	}
	s.fill()
	return s
}

func (s *Stream) fill() {
	h := hmac.New(sha256.New, s.key)
	fmt.Fprintf(h, "%s:%d", s.label, s.round)
	copy(s.buf[:], h.Sum(nil))
}

func (s *Stream) next() byte {
	if s.pos >= len(s.buf) {
		s.round++
		s.pos = 0
		s.fill()
	}
	b := s.buf[s.pos]
	s.pos++
	return b
}

// Float64 returns the next float in [0,1) using exactly 4 bytes.
func (s *Stream) Float64() float64 {
	result := 0.0
	for i := 0; i < 4; i++ {
		divider := math.Pow(256, float64(i+1))
		result += float64(s.next()) / divider
	}
	return result
}

// Range returns a float in [lo, hi).
func (s *Stream) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*s.Float64()
}

// IntN returns an integer in [lo, hi] inclusive.
func (s *Stream) IntN(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + int(math.Floor(s.Range(0, float64(hi-lo+1))))
}

// Chance returns true with probability p.
func (s *Stream) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float64() < p
}

// Normal returns a normally distributed sample via Box-Muller. One value per
// pass; the spare is discarded for determinism across call sites.
func (s *Stream) Normal(mean, std float64) float64 {
	u := 0.0
	v := 0.0
	for u == 0 {
		u = s.Float64()
	}
	for v == 0 {
		v = s.Float64()
	}
	mag := math.Sqrt(-2.0 * math.Log(u))
	z := mag * math.Cos(2.0*math.Pi*v)
	return mean + z*std
}

// Shuffle performs a Fisher-Yates shuffle over n elements.
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.IntN(0, i)
		swap(i, j)
	}
}
