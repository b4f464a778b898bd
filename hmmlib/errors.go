package hmmlib

import "github.com/pkg/errors"

// Sentinel errors for the hmmlib package.  Use errors.Is to check them,
// they are usually returned wrapped with more context.
var (
	ErrInvalidConfig = errors.New("hmmlib: invalid configuration")
	ErrInvalidObs    = errors.New("hmmlib: invalid observation sequence")
	ErrInvalidParams = errors.New("hmmlib: invalid model parameters")

	// ErrDegenerate is returned by the forward-backward sweep when the
	// emission densities or scaling factors underflow at some time point.
	ErrDegenerate = errors.New("hmmlib: degenerate likelihood computation")

	// ErrAllDiverged means that no restart produced a usable estimate.
	ErrAllDiverged = errors.New("hmmlib: all restarts diverged")
)
