package hmmlib_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/hmmsim"
)

// TestUpdate_ProperDistributions checks that every M-step returns
// probability vectors and positive standard deviations.
func TestUpdate_ProperDistributions(t *testing.T) {
	_, obs := simulate(t, recoveryModel(), 1000, 5)
	cfg := hmmlib.DefaultConfig()
	p := hmmlib.NewScheduler(cfg, hmmlib.NewRand(5)).Draw()

	for it := 0; it < 10; it++ {
		tb, err := hmmlib.ForwardBackward(obs, p)
		require.NoError(t, err)

		p, _ = hmmlib.Update(obs, tb, p, cfg.MinStd)
		assert.InDelta(t, 1, floats.Sum(p.Init), 1e-9)
		for st := 0; st < p.NState; st++ {
			assert.InDelta(t, 1, floats.Sum(p.Trans[st*2:(st+1)*2]), 1e-9)
			assert.Greater(t, p.Std[st], 0.0)
		}
		require.NoError(t, p.Validate())
	}
}

// TestUpdate_Monotone checks that the log-likelihood never decreases
// over EM iterations, for several starting points.
func TestUpdate_Monotone(t *testing.T) {
	_, obs := simulate(t, recoveryModel(), 1500, 9)
	cfg := hmmlib.DefaultConfig()
	sched := hmmlib.NewScheduler(cfg, hmmlib.NewRand(9))

	for r := 0; r < 4; r++ {
		p := sched.Draw()
		prev := math.Inf(-1)
		for it := 0; it < 30; it++ {
			tb, err := hmmlib.ForwardBackward(obs, p)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, tb.LogLike, prev-1e-8*math.Abs(tb.LogLike),
				"restart %d iteration %d", r, it)
			prev = tb.LogLike
			p, _ = hmmlib.Update(obs, tb, p, cfg.MinStd)
		}
	}
}

// TestUpdate_MonotoneThreeStates runs the same check with three states.
func TestUpdate_MonotoneThreeStates(t *testing.T) {
	truth := hmmlib.New(3)
	copy(truth.Init, []float64{0.5, 0.3, 0.2})
	copy(truth.Trans, []float64{0.9, 0.05, 0.05, 0.05, 0.9, 0.05, 0.1, 0.1, 0.8})
	copy(truth.Mean, []float64{50, 70, 95})
	copy(truth.Std, []float64{3, 4, 6})
	_, obs := simulate(t, truth, 1200, 21)

	cfg := hmmlib.DefaultConfig()
	cfg.NState = 3
	cfg.InitProb = []float64{1, 1, 1}
	cfg.MeanRanges = []hmmlib.Range{{Lo: 45, Hi: 60}, {Lo: 60, Hi: 80}, {Lo: 80, Hi: 100}}
	require.NoError(t, cfg.Validate())

	p := hmmlib.NewScheduler(cfg, hmmlib.NewRand(21)).Draw()
	prev := math.Inf(-1)
	for it := 0; it < 25; it++ {
		tb, err := hmmlib.ForwardBackward(obs, p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, tb.LogLike, prev-1e-8*math.Abs(tb.LogLike))
		prev = tb.LogLike
		p, _ = hmmlib.Update(obs, tb, p, cfg.MinStd)
	}
}

// TestUpdate_FloorsVariance feeds a series where one regime is exactly
// constant.  The standard deviation of that state must be floored and
// later iterations must stay finite.
func TestUpdate_FloorsVariance(t *testing.T) {
	rng := hmmlib.NewRand(4)
	var obs []float64
	for blk := 0; blk < 3; blk++ {
		for i := 0; i < 50; i++ {
			obs = append(obs, 50)
		}
		for i := 0; i < 100; i++ {
			obs = append(obs, 80+5*rng.NormFloat64())
		}
	}

	p := recoveryModel()
	copy(p.Mean, []float64{50, 80})
	copy(p.Std, []float64{1, 5})
	minStd := 1e-3

	tb, err := hmmlib.ForwardBackward(obs, p)
	require.NoError(t, err)
	p, adj := hmmlib.Update(obs, tb, p, minStd)
	assert.Contains(t, adj.Floored, 0)
	assert.Equal(t, minStd, p.Std[0])

	for it := 0; it < 5; it++ {
		tb, err = hmmlib.ForwardBackward(obs, p)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(tb.LogLike) || math.IsInf(tb.LogLike, 0))
		p, _ = hmmlib.Update(obs, tb, p, minStd)
		require.NoError(t, p.Validate())
		assert.GreaterOrEqual(t, p.Std[0], minStd)
	}
}

// TestUpdate_StarvedState checks that a state with no posterior weight
// keeps its previous emission parameters.
func TestUpdate_StarvedState(t *testing.T) {
	p := recoveryModel()
	copy(p.Init, []float64{1, 0})
	copy(p.Trans, []float64{1, 0, 0.5, 0.5})
	states, obs := hmmsim.Generate(p, 200, hmmlib.NewRand(2))
	for _, st := range states {
		require.Equal(t, 0, st)
	}

	tb, err := hmmlib.ForwardBackward(obs, p)
	require.NoError(t, err)

	q, adj := hmmlib.Update(obs, tb, p, 1e-3)
	assert.Equal(t, []int{1}, adj.Starved)
	assert.Equal(t, p.Mean[1], q.Mean[1])
	assert.Equal(t, p.Std[1], q.Std[1])
	assert.Equal(t, p.Trans[2:], q.Trans[2:])
	assert.NoError(t, q.Validate())
}
