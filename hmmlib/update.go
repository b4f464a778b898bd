package hmmlib

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Adjustment reports the states whose update was modified during an
// M-step.
type Adjustment struct {

	// States whose standard deviation was raised to the floor
	Floored []int

	// States with no posterior weight, which keep their previous
	// emission and transition parameters
	Starved []int
}

// Update performs the M-step: it computes new parameters from the
// posteriors in tb.  prev supplies the values kept for states that
// receive no posterior weight.  Standard deviations are never allowed
// to drop below minStd.
func Update(obs []float64, tb *Tables, prev *Params, minStd float64) (*Params, Adjustment) {

	k := prev.NState
	q := New(k)
	var adj Adjustment

	copy(q.Init, tb.Gamma[0])
	normalizeSum(q.Init, 1/float64(k))

	// Transition probabilities
	den := make([]float64, k)
	for t := 0; t < tb.NTime-1; t++ {
		floats.Add(q.Trans, tb.Xi[t])
		floats.Add(den, tb.Gamma[t])
	}
	for st := 0; st < k; st++ {
		row := q.Trans[st*k : (st+1)*k]
		if den[st] < underflow {
			copy(row, prev.Trans[st*k:(st+1)*k])
			continue
		}
		floats.Scale(1/den[st], row)
		normalizeSum(row, 1/float64(k))
	}

	// Emission means
	wt := make([]float64, k)
	for t, y := range obs {
		for st := 0; st < k; st++ {
			g := tb.Gamma[t][st]
			wt[st] += g
			q.Mean[st] += g * y
		}
	}
	for st := 0; st < k; st++ {
		if wt[st] < underflow {
			adj.Starved = append(adj.Starved, st)
			q.Mean[st] = prev.Mean[st]
			continue
		}
		q.Mean[st] /= wt[st]
	}

	// Emission standard deviations, centered at the new means
	for t, y := range obs {
		for st := 0; st < k; st++ {
			d := y - q.Mean[st]
			q.Std[st] += tb.Gamma[t][st] * d * d
		}
	}
	for st := 0; st < k; st++ {
		if wt[st] < underflow {
			q.Std[st] = prev.Std[st]
			continue
		}
		sd := math.Sqrt(q.Std[st] / wt[st])
		if !(sd >= minStd) {
			adj.Floored = append(adj.Floored, st)
			sd = minStd
		}
		q.Std[st] = sd
	}

	return q, adj
}
