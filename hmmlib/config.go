package hmmlib

import (
	"math"

	"github.com/pkg/errors"
)

// Range is a closed interval [Lo, Hi] from which a starting value is
// drawn uniformly.
type Range struct {
	Lo float64 `mapstructure:"lo" yaml:"lo"`
	Hi float64 `mapstructure:"hi" yaml:"hi"`
}

func (r Range) valid() bool {
	return !math.IsNaN(r.Lo) && !math.IsNaN(r.Hi) && !math.IsInf(r.Lo, 0) &&
		!math.IsInf(r.Hi, 0) && r.Lo <= r.Hi
}

// Config holds everything that controls a batch of EM restarts.  There
// are no defaults inside the fitting code, every value used comes from
// a Config.
type Config struct {

	// Number of hidden states
	NState int `mapstructure:"nstate"`

	// Number of independent random restarts
	NRestart int `mapstructure:"nrestart"`

	// Maximum number of EM updates per restart
	MaxIter int `mapstructure:"maxiter"`

	// A run has converged when the log-likelihood changes by less than
	// this amount between consecutive iterations.
	Epsilon float64 `mapstructure:"epsilon"`

	// A decrease in log-likelihood larger than DecreaseTol*max(1, |llf|)
	// marks the run as diverged.
	DecreaseTol float64 `mapstructure:"decreasetol"`

	// Floor for the emission standard deviations
	MinStd float64 `mapstructure:"minstd"`

	// Seed for the restart generator
	Seed uint64 `mapstructure:"seed"`

	// Number of restarts run concurrently, 0 uses all CPUs
	Workers int `mapstructure:"workers"`

	// Initial state distribution used for every restart.  It is
	// normalized to sum to 1.
	InitProb []float64 `mapstructure:"initprob"`

	// Range for the diagonal of the starting transition matrix.
	// The off-diagonal mass is split evenly.
	TransDiag Range `mapstructure:"transdiag"`

	// MeanRanges[k] is the range for the starting mean of state k.
	MeanRanges []Range `mapstructure:"meanranges"`

	// Range for the starting standard deviations of all states
	StdRange Range `mapstructure:"stdrange"`
}

// DefaultConfig returns the configuration used for minute-level heart
// rate data: two states, a low-rate and a high-rate regime.
func DefaultConfig() Config {
	return Config{
		NState:      2,
		NRestart:    20,
		MaxIter:     50,
		Epsilon:     0.5,
		DecreaseTol: 1e-6,
		MinStd:      1e-3,
		Seed:        1,
		InitProb:    []float64{0.66, 0.33},
		TransDiag:   Range{Lo: 0.90, Hi: 0.99},
		MeanRanges:  []Range{{Lo: 55, Hi: 67}, {Lo: 75, Hi: 90}},
		StdRange:    Range{Lo: 2, Hi: 10},
	}
}

// Validate checks the configuration and returns an error wrapping
// ErrInvalidConfig that describes the first problem found.
func (cfg *Config) Validate() error {

	switch {
	case cfg.NState < 1:
		return errors.Wrapf(ErrInvalidConfig, "nstate must be at least 1, got %d", cfg.NState)
	case cfg.NRestart < 1:
		return errors.Wrapf(ErrInvalidConfig, "nrestart must be at least 1, got %d", cfg.NRestart)
	case cfg.MaxIter < 1:
		return errors.Wrapf(ErrInvalidConfig, "maxiter must be positive, got %d", cfg.MaxIter)
	case !(cfg.Epsilon > 0):
		return errors.Wrapf(ErrInvalidConfig, "epsilon must be positive, got %g", cfg.Epsilon)
	case !(cfg.DecreaseTol >= 0):
		return errors.Wrapf(ErrInvalidConfig, "decreasetol must be non-negative, got %g", cfg.DecreaseTol)
	case !(cfg.MinStd > 0):
		return errors.Wrapf(ErrInvalidConfig, "minstd must be positive, got %g", cfg.MinStd)
	case cfg.Workers < 0:
		return errors.Wrapf(ErrInvalidConfig, "workers must be non-negative, got %d", cfg.Workers)
	}

	if len(cfg.InitProb) != cfg.NState {
		return errors.Wrapf(ErrInvalidConfig, "initprob has %d entries, want %d",
			len(cfg.InitProb), cfg.NState)
	}
	var tot float64
	for _, v := range cfg.InitProb {
		if !(v >= 0) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidConfig, "initprob entry %g is not a probability", v)
		}
		tot += v
	}
	if !(tot > 0) {
		return errors.Wrap(ErrInvalidConfig, "initprob sums to zero")
	}

	if !cfg.TransDiag.valid() || cfg.TransDiag.Lo < 0 || cfg.TransDiag.Hi > 1 {
		return errors.Wrapf(ErrInvalidConfig, "transdiag %v must lie within [0, 1]", cfg.TransDiag)
	}

	if len(cfg.MeanRanges) != cfg.NState {
		return errors.Wrapf(ErrInvalidConfig, "meanranges has %d entries, want %d",
			len(cfg.MeanRanges), cfg.NState)
	}
	for k, r := range cfg.MeanRanges {
		if !r.valid() {
			return errors.Wrapf(ErrInvalidConfig, "meanranges[%d] %v is not a valid range", k, r)
		}
	}

	if !cfg.StdRange.valid() || !(cfg.StdRange.Lo > 0) {
		return errors.Wrapf(ErrInvalidConfig, "stdrange %v must be a positive range", cfg.StdRange)
	}

	return nil
}
