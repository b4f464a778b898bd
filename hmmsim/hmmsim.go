// Package hmmsim simulates observation sequences from a Gaussian hidden
// Markov model with known parameters.
package hmmsim

import (
	"math/rand/v2"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
)

// Generate draws a state sequence of length n from the Markov chain in
// p, and an observation for each state from the corresponding Gaussian
// emission distribution.
func Generate(p *hmmlib.Params, n int, rng *rand.Rand) ([]int, []float64) {

	states := GenStates(p, n, rng)
	return states, GenObs(p, states, rng)
}

// GenStates generates a random state sequence.
func GenStates(p *hmmlib.Params, n int, rng *rand.Rand) []int {

	if n == 0 {
		return nil
	}

	k := p.NState
	states := make([]int, n)

	// Set the initial state
	states[0] = genDiscrete(p.Init, rng)

	// Set the rest of the states
	for t := 1; t < n; t++ {
		st := states[t-1]
		states[t] = genDiscrete(p.Trans[st*k:(st+1)*k], rng)
	}

	return states
}

// GenObs generates a random observation for each state in states.
func GenObs(p *hmmlib.Params, states []int, rng *rand.Rand) []float64 {

	obs := make([]float64, len(states))
	for t, st := range states {
		obs[t] = p.Mean[st] + rng.NormFloat64()*p.Std[st]
	}

	return obs
}

// Generate a discrete random variable from the given probability vector,
// which must sum to 1.
func genDiscrete(pr []float64, rng *rand.Rand) int {

	u := rng.Float64()
	p := 0.0
	for j := range pr {
		p += pr[j]
		if u < p {
			return j
		}
	}

	// Rounding can leave the total slightly below 1
	for j := len(pr) - 1; j >= 0; j-- {
		if pr[j] > 0 {
			return j
		}
	}

	panic("Not a probability vector")
}
