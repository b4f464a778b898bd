package hmmlib_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
)

// bruteForce enumerates every state path and returns the likelihood of
// obs, along with P(state k at time t, obs) for every t and k.
func bruteForce(obs []float64, p *hmmlib.Params) (float64, [][]float64) {

	k, n := p.NState, len(obs)
	joint := make([][]float64, n)
	for t := range joint {
		joint[t] = make([]float64, k)
	}

	path := make([]int, n)
	var total float64
	npath := int(math.Pow(float64(k), float64(n)))
	for code := 0; code < npath; code++ {
		c := code
		for t := range path {
			path[t] = c % k
			c /= k
		}

		pr := p.Init[path[0]]
		for t, st := range path {
			if t > 0 {
				pr *= p.Trans[path[t-1]*k+st]
			}
			pr *= distuv.Normal{Mu: p.Mean[st], Sigma: p.Std[st]}.Prob(obs[t])
		}

		total += pr
		for t, st := range path {
			joint[t][st] += pr
		}
	}

	return total, joint
}

// TestForwardBackward_MatchesEnumeration compares the scaled recursions
// with a direct sum over all state paths.
func TestForwardBackward_MatchesEnumeration(t *testing.T) {
	p := recoveryModel()
	obs := []float64{58, 63, 71, 79, 84, 66}

	tb, err := hmmlib.ForwardBackward(obs, p)
	require.NoError(t, err)

	total, joint := bruteForce(obs, p)
	assert.InDelta(t, math.Log(total), tb.LogLike, 1e-9)
	for i := range obs {
		for st := 0; st < 2; st++ {
			assert.InDelta(t, joint[i][st]/total, tb.Gamma[i][st], 1e-9)
		}
	}
}

func TestForwardBackward_ThreeStates(t *testing.T) {
	p := hmmlib.New(3)
	copy(p.Init, []float64{0.2, 0.5, 0.3})
	copy(p.Trans, []float64{0.8, 0.1, 0.1, 0.2, 0.7, 0.1, 0.05, 0.15, 0.8})
	copy(p.Mean, []float64{50, 65, 90})
	copy(p.Std, []float64{4, 6, 8})
	obs := []float64{52, 60, 88, 91, 70}

	tb, err := hmmlib.ForwardBackward(obs, p)
	require.NoError(t, err)

	total, _ := bruteForce(obs, p)
	assert.InDelta(t, math.Log(total), tb.LogLike, 1e-9)
}

// TestForwardBackward_PosteriorsNormalized checks that gamma rows and
// xi slices sum to one, and that xi sums to gamma over the next state.
func TestForwardBackward_PosteriorsNormalized(t *testing.T) {
	_, obs := simulate(t, recoveryModel(), 3000, 11)
	p := hmmlib.NewScheduler(hmmlib.DefaultConfig(), hmmlib.NewRand(3)).Draw()

	tb, err := hmmlib.ForwardBackward(obs, p)
	require.NoError(t, err)
	require.Len(t, tb.Gamma, len(obs))
	require.Len(t, tb.Xi, len(obs)-1)
	assert.False(t, math.IsNaN(tb.LogLike) || math.IsInf(tb.LogLike, 0))

	for i := range tb.Gamma {
		assert.InDelta(t, 1, floats.Sum(tb.Gamma[i]), 1e-9)
		assert.InDelta(t, 1, floats.Sum(tb.Fprob[i]), 1e-9)
		for _, g := range tb.Gamma[i] {
			assert.GreaterOrEqual(t, g, 0.0)
		}
	}
	for i := range tb.Xi {
		xi := tb.Xi[i]
		assert.InDelta(t, 1, floats.Sum(xi), 1e-9)
		assert.InDelta(t, tb.Gamma[i][0], xi[0]+xi[1], 1e-9)
		assert.InDelta(t, tb.Gamma[i][1], xi[2]+xi[3], 1e-9)
	}
}

// TestForwardBackward_Degenerate checks that vanishing emission
// densities are reported instead of producing NaN.
func TestForwardBackward_Degenerate(t *testing.T) {
	p := recoveryModel()
	p.Std[0] = 1e-300
	p.Std[1] = 1e-300

	_, err := hmmlib.ForwardBackward([]float64{61.5, 79.5, 70}, p)
	assert.ErrorIs(t, err, hmmlib.ErrDegenerate)
}

// TestForwardBackward_Unreachable checks that an observation no
// reachable state can emit is reported.
func TestForwardBackward_Unreachable(t *testing.T) {
	p := recoveryModel()
	copy(p.Init, []float64{1, 0})
	copy(p.Trans, []float64{1, 0, 0, 1})
	p.Std[0] = 1e-3

	// 80 is far outside state 0 but state 1 can never be entered.
	_, err := hmmlib.ForwardBackward([]float64{60, 80 + 1e6}, p)
	assert.ErrorIs(t, err, hmmlib.ErrDegenerate)
}

func TestForwardBackward_TooShort(t *testing.T) {
	_, err := hmmlib.ForwardBackward([]float64{60}, recoveryModel())
	assert.ErrorIs(t, err, hmmlib.ErrInvalidObs)
}
