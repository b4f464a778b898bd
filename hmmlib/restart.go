package hmmlib

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// RunID identifies one restart.  Seq is the position of the restart in
// the schedule and Fingerprint is a hash of its starting parameters, so
// a RunID can be matched to the draw that produced it.
type RunID struct {
	Seq         int
	Fingerprint uint64
}

// String returns a key that is unique within a batch and safe to use
// as a file name.
func (id RunID) String() string {
	return fmt.Sprintf("run-%03d-%016x", id.Seq, id.Fingerprint)
}

// Fingerprint returns an FNV-64a hash of the parameter values.
func Fingerprint(p *Params) uint64 {

	h := fnv.New64a()
	var b [8]byte
	put := func(x []float64) {
		for _, v := range x {
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
			_, _ = h.Write(b[:])
		}
	}

	binary.LittleEndian.PutUint64(b[:], uint64(p.NState))
	_, _ = h.Write(b[:])
	put(p.Init)
	put(p.Trans)
	put(p.Mean)
	put(p.Std)

	return h.Sum64()
}

// Restart is one starting point for EM.
type Restart struct {
	ID     RunID
	Params *Params
}

// Scheduler draws random starting parameters.  All randomness comes
// from the generator it is given, so a fixed seed reproduces the same
// schedule.
type Scheduler struct {
	cfg Config
	rng *rand.Rand
}

// NewScheduler returns a Scheduler drawing from rng.  The configuration
// must already be valid.
func NewScheduler(cfg Config, rng *rand.Rand) *Scheduler {
	return &Scheduler{cfg: cfg, rng: rng}
}

// NewRand returns the generator used for a given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Schedule returns NRestart independent starting points.  The draws
// happen in sequence order, so the result does not depend on how the
// restarts are later executed.
func (s *Scheduler) Schedule() []Restart {

	rs := make([]Restart, s.cfg.NRestart)
	for i := range rs {
		p := s.Draw()
		rs[i] = Restart{
			ID:     RunID{Seq: i, Fingerprint: Fingerprint(p)},
			Params: p,
		}
	}

	return rs
}

// Draw returns a single random starting point.
func (s *Scheduler) Draw() *Params {

	k := s.cfg.NState
	p := New(k)

	copy(p.Init, s.cfg.InitProb)
	normalizeSum(p.Init, 1/float64(k))

	// Sticky states: a heavy diagonal and the remaining mass spread evenly.
	for i := 0; i < k; i++ {
		if k == 1 {
			p.Trans[0] = 1
			break
		}
		d := s.uniform(s.cfg.TransDiag)
		for j := 0; j < k; j++ {
			if i == j {
				p.Trans[i*k+j] = d
			} else {
				p.Trans[i*k+j] = (1 - d) / float64(k-1)
			}
		}
	}

	// Disjoint mean ranges keep the state labels apart.
	for i := 0; i < k; i++ {
		p.Mean[i] = s.uniform(s.cfg.MeanRanges[i])
	}
	for i := 0; i < k; i++ {
		p.Std[i] = s.uniform(s.cfg.StdRange)
	}

	return p
}

func (s *Scheduler) uniform(r Range) float64 {
	return r.Lo + (r.Hi-r.Lo)*s.rng.Float64()
}
