package hmmlib

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Reconstruct uses the Viterbi algorithm to find the most likely state
// sequence for obs.  It also returns the joint log-probability of the
// observations and that state sequence.
func Reconstruct(obs []float64, p *Params) ([]int, float64, error) {

	if err := CheckObs(obs); err != nil {
		return nil, 0, err
	}
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}

	lpr := makeFloatArray(len(obs), p.NState)
	lpt := make([][]int, len(obs))
	for t := range lpt {
		lpt[t] = make([]int, p.NState)
	}

	reconstructionProbs(obs, p, lpr, lpt)

	last := lpr[len(obs)-1]
	lp := last[argmax(last)]
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return nil, 0, errors.Wrap(ErrDegenerate, "no state path has positive probability")
	}

	return traceback(lpr, lpt), lp, nil
}

// reconstructionProbs fills lpr[t][st] with the log-probability of the
// best path ending in st at time t, and lpt[t][st] with the previous
// state on that path.
func reconstructionProbs(obs []float64, p *Params, lpr [][]float64, lpt [][]int) {

	k := p.NState
	wk := make([]float64, k)

	norms := make([]distuv.Normal, k)
	for st := range norms {
		norms[st] = distuv.Normal{Mu: p.Mean[st], Sigma: p.Std[st]}
	}

	lt := make([]float64, k*k)
	for j := range lt {
		lt[j] = math.Log(p.Trans[j])
	}

	for st := 0; st < k; st++ {
		lpr[0][st] = math.Log(p.Init[st]) + norms[st].LogProb(obs[0])
	}

	// From st1 to st2
	for t := 1; t < len(obs); t++ {
		for st2 := 0; st2 < k; st2++ {
			for st1 := 0; st1 < k; st1++ {
				wk[st1] = lpr[t-1][st1] + lt[st1*k+st2]
			}

			// The best previous state
			jj := argmax(wk)
			lpt[t][st2] = jj
			lpr[t][st2] = wk[jj] + norms[st2].LogProb(obs[t])
		}
	}
}

func traceback(lpr [][]float64, lpt [][]int) []int {

	n := len(lpr)
	y := make([]int, n)

	y[n-1] = argmax(lpr[n-1])
	for t := n - 2; t >= 0; t-- {
		y[t] = lpt[t+1][y[t+1]]
	}

	return y
}

// CompareStates returns the number of positions where the state
// sequences x and y disagree, and the number of positions compared.
func CompareStates(x, y []int) (int, int, error) {

	if len(x) != len(y) {
		return 0, 0, errors.Errorf("hmmlib: state sequences have lengths %d and %d", len(x), len(y))
	}

	var e int
	for t := range x {
		if x[t] != y[t] {
			e++
		}
	}

	return e, len(x), nil
}
