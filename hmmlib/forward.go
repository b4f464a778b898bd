package hmmlib

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tables holds the scaled forward and backward probabilities for one
// observation sequence, together with the posteriors derived from them.
// A Tables value belongs to a single EM iteration.
type Tables struct {
	NTime  int
	NState int

	// Fprob[t] is the forward probability at time t, normalized to sum
	// to 1.  Scale[t] is the normalizing constant.
	Fprob [][]float64
	Bprob [][]float64
	Scale []float64

	// Emis[t][k] is the emission density of state k at time t, divided
	// by the largest density at time t.
	Emis [][]float64

	// Gamma[t][k] is P(state k at time t | all observations).
	Gamma [][]float64

	// Xi[t][i*NState+j] is P(state i at t, state j at t+1 | all
	// observations), for t < NTime-1.
	Xi [][]float64

	// LogLike is the log-likelihood of the observations.
	LogLike float64
}

// ForwardBackward runs the forward and backward recursions for the
// given observations and parameters.  The recursions are scaled at
// every time point so that long sequences do not underflow.  If a time
// point has no positive probability under the current parameters the
// returned error wraps ErrDegenerate.
func ForwardBackward(obs []float64, p *Params) (*Tables, error) {

	if len(obs) < 2 {
		return nil, errors.Wrapf(ErrInvalidObs, "%d observations", len(obs))
	}

	tb := &Tables{
		NTime:  len(obs),
		NState: p.NState,
		Fprob:  makeFloatArray(len(obs), p.NState),
		Bprob:  makeFloatArray(len(obs), p.NState),
		Scale:  make([]float64, len(obs)),
		Emis:   makeFloatArray(len(obs), p.NState),
		Gamma:  makeFloatArray(len(obs), p.NState),
		Xi:     makeFloatArray(len(obs)-1, p.NState*p.NState),
	}

	if err := tb.emissions(obs, p); err != nil {
		return nil, err
	}
	if err := tb.forward(p); err != nil {
		return nil, err
	}
	if err := tb.backward(p); err != nil {
		return nil, err
	}
	if err := tb.posteriors(p); err != nil {
		return nil, err
	}

	return tb, nil
}

// emissions fills in the shifted emission densities.  The shifts are
// added to the log-likelihood here.
func (tb *Tables) emissions(obs []float64, p *Params) error {

	norms := make([]distuv.Normal, p.NState)
	for st := range norms {
		norms[st] = distuv.Normal{Mu: p.Mean[st], Sigma: p.Std[st]}
	}

	for t, y := range obs {
		row := tb.Emis[t]
		for st := range norms {
			row[st] = norms[st].LogProb(y)
			if math.IsNaN(row[st]) {
				return errors.Wrapf(ErrDegenerate, "emission density of state %d is NaN at time %d", st, t)
			}
		}

		mx := floats.Max(row)
		if math.IsInf(mx, 0) {
			return errors.Wrapf(ErrDegenerate, "all emission densities vanish at time %d", t)
		}
		tb.LogLike += mx

		floats.AddConst(-mx, row)
		for st := range row {
			row[st] = math.Exp(row[st])
		}
	}

	return nil
}

func (tb *Tables) forward(p *Params) error {

	k := p.NState

	floats.MulTo(tb.Fprob[0], p.Init, tb.Emis[0])
	if err := tb.rescale(0); err != nil {
		return err
	}

	for t := 1; t < tb.NTime; t++ {
		prev, cur := tb.Fprob[t-1], tb.Fprob[t]
		for st2 := 0; st2 < k; st2++ {
			var s float64
			for st1 := 0; st1 < k; st1++ {
				s += prev[st1] * p.Trans[st1*k+st2]
			}
			cur[st2] = s * tb.Emis[t][st2]
		}
		if err := tb.rescale(t); err != nil {
			return err
		}
	}

	return nil
}

// rescale normalizes Fprob[t] and records the scale factor.
func (tb *Tables) rescale(t int) error {

	c := floats.Sum(tb.Fprob[t])
	if !(c > 0) || math.IsInf(c, 0) {
		return errors.Wrapf(ErrDegenerate, "forward probabilities vanish at time %d", t)
	}
	floats.Scale(1/c, tb.Fprob[t])
	tb.Scale[t] = c
	tb.LogLike += math.Log(c)

	return nil
}

func (tb *Tables) backward(p *Params) error {

	k := p.NState
	last := tb.NTime - 1

	for st := 0; st < k; st++ {
		tb.Bprob[last][st] = 1
	}

	for t := last - 1; t >= 0; t-- {
		next, cur := tb.Bprob[t+1], tb.Bprob[t]
		emis := tb.Emis[t+1]
		for st1 := 0; st1 < k; st1++ {
			var s float64
			for st2 := 0; st2 < k; st2++ {
				s += p.Trans[st1*k+st2] * emis[st2] * next[st2]
			}
			cur[st1] = s / tb.Scale[t+1]
		}
		if !finite(cur) {
			return errors.Wrapf(ErrDegenerate, "backward probabilities overflow at time %d", t)
		}
	}

	return nil
}

func (tb *Tables) posteriors(p *Params) error {

	k := p.NState

	for t := 0; t < tb.NTime; t++ {
		floats.MulTo(tb.Gamma[t], tb.Fprob[t], tb.Bprob[t])
		if s := normalizeSum(tb.Gamma[t], 0); !(s > underflow) {
			return errors.Wrapf(ErrDegenerate, "state posterior vanishes at time %d", t)
		}
	}

	for t := 0; t < tb.NTime-1; t++ {
		xi := tb.Xi[t]
		emis, next := tb.Emis[t+1], tb.Bprob[t+1]
		for st1 := 0; st1 < k; st1++ {
			f := tb.Fprob[t][st1]
			for st2 := 0; st2 < k; st2++ {
				xi[st1*k+st2] = f * p.Trans[st1*k+st2] * emis[st2] * next[st2]
			}
		}
		if s := normalizeSum(xi, 0); !(s > underflow) {
			return errors.Wrapf(ErrDegenerate, "transition posterior vanishes at time %d", t)
		}
	}

	return nil
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
