package hmmlib_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/hmmsim"
)

// recoveryModel is the two-state heart rate model used to simulate
// test data.
func recoveryModel() *hmmlib.Params {

	p := hmmlib.New(2)
	copy(p.Init, []float64{2.0 / 3, 1.0 / 3})
	copy(p.Trans, []float64{0.95, 0.05, 0.10, 0.90})
	copy(p.Mean, []float64{60, 80})
	copy(p.Std, []float64{3, 5})

	return p
}

func simulate(t *testing.T, p *hmmlib.Params, n int, seed uint64) ([]int, []float64) {

	t.Helper()
	require.NoError(t, p.Validate())

	return hmmsim.Generate(p, n, hmmlib.NewRand(seed))
}

// testConfig is a small valid configuration for two states.
func testConfig() hmmlib.Config {

	cfg := hmmlib.DefaultConfig()
	cfg.NRestart = 5
	cfg.Workers = 2

	return cfg
}
