package hmmlib

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Tolerance used when checking that probability vectors sum to 1
	probTol = 1e-6

	// Sums of posterior weights below this are treated as zero
	underflow = 1e-300
)

// Params holds the parameters of a hidden Markov model with univariate
// Gaussian emissions.  All matrices are stored row-major in flat slices.
type Params struct {

	// Number of states
	NState int

	// The initial probability distribution
	Init []float64

	// The transition probability matrix, Trans[i*NState+j] is the
	// probability of moving from state i to state j.
	Trans []float64

	// The emission means
	Mean []float64

	// The emission standard deviations
	Std []float64
}

// New returns a zeroed Params value for the given number of states.
func New(NState int) *Params {

	return &Params{
		NState: NState,
		Init:   make([]float64, NState),
		Trans:  make([]float64, NState*NState),
		Mean:   make([]float64, NState),
		Std:    make([]float64, NState),
	}
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {

	q := New(p.NState)
	copy(q.Init, p.Init)
	copy(q.Trans, p.Trans)
	copy(q.Mean, p.Mean)
	copy(q.Std, p.Std)

	return q
}

// Validate checks that the parameters define a proper model.  The
// returned error wraps ErrInvalidParams.
func (p *Params) Validate() error {

	k := p.NState
	if k < 1 {
		return errors.Wrapf(ErrInvalidParams, "%d states", k)
	}
	if len(p.Init) != k || len(p.Trans) != k*k || len(p.Mean) != k || len(p.Std) != k {
		return errors.Wrap(ErrInvalidParams, "parameter slices do not match the number of states")
	}

	if err := checkProb(p.Init); err != nil {
		return errors.WithMessage(err, "initial distribution")
	}
	for i := 0; i < k; i++ {
		if err := checkProb(p.Trans[i*k : (i+1)*k]); err != nil {
			return errors.WithMessagef(err, "transition row %d", i)
		}
	}

	for i := 0; i < k; i++ {
		if math.IsNaN(p.Mean[i]) || math.IsInf(p.Mean[i], 0) {
			return errors.Wrapf(ErrInvalidParams, "mean %d is %g", i, p.Mean[i])
		}
		if !(p.Std[i] > 0) || math.IsInf(p.Std[i], 0) {
			return errors.Wrapf(ErrInvalidParams, "standard deviation %d is %g", i, p.Std[i])
		}
	}

	return nil
}

func checkProb(x []float64) error {

	for _, v := range x {
		if !(v >= 0) || v > 1+probTol {
			return errors.Wrapf(ErrInvalidParams, "%g is not a probability", v)
		}
	}
	if s := floats.Sum(x); math.Abs(s-1) > probTol {
		return errors.Wrapf(ErrInvalidParams, "probabilities sum to %g", s)
	}

	return nil
}

// SortStates relabels the states so that the means are increasing.
// EM is invariant to the labelling, so this only makes results from
// different restarts comparable.
func (p *Params) SortStates() {

	k := p.NState
	perm := make([]int, k)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool { return p.Mean[perm[i]] < p.Mean[perm[j]] })

	q := p.Clone()
	for i, pi := range perm {
		p.Init[i] = q.Init[pi]
		p.Mean[i] = q.Mean[pi]
		p.Std[i] = q.Std[pi]
		for j, pj := range perm {
			p.Trans[i*k+j] = q.Trans[pi*k+pj]
		}
	}
}

// String formats the parameters for log messages.
func (p *Params) String() string {

	k := p.NState
	tr := mat.NewDense(k, k, append([]float64(nil), p.Trans...))

	return fmt.Sprintf("init=%.4f mean=%.4f std=%.4f trans=\n%.4f",
		p.Init, p.Mean, p.Std, mat.Formatted(tr, mat.Prefix("      ")))
}

// WriteSummary writes the model parameters to w.  The optional row
// labels are used if provided.
func WriteSummary(w io.Writer, p *Params, title string, labels []string) error {

	var buf bytes.Buffer

	buf.WriteString(title)
	buf.WriteString("\n")

	buf.WriteString("Initial states distribution:\n")
	writeMatrix(&buf, p.Init, p.NState, 1, labels)
	buf.WriteString("\n")

	buf.WriteString("Transition matrix:\n")
	writeMatrix(&buf, p.Trans, p.NState, p.NState, labels)
	buf.WriteString("\n")

	buf.WriteString("Means:\n")
	writeMatrix(&buf, p.Mean, p.NState, 1, labels)
	buf.WriteString("\n")

	buf.WriteString("Standard deviations:\n")
	writeMatrix(&buf, p.Std, p.NState, 1, labels)
	buf.WriteString("\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// writeMatrix writes a matrix in text format
func writeMatrix(buf *bytes.Buffer, x []float64, nrow, ncol int, labels []string) {

	for i := 0; i < nrow; i++ {
		if labels != nil {
			fmt.Fprintf(buf, "%-20s", labels[i])
		}
		for j := 0; j < ncol; j++ {
			fmt.Fprintf(buf, "%12.4f ", x[i*ncol+j])
		}
		buf.WriteString("\n")
	}
}

// normalize the values in x to have a sum of 1.  If the sum is too
// small all values are set to z.  Returns the original sum.
func normalizeSum(x []float64, z float64) float64 {
	scale := floats.Sum(x)
	if !(scale > underflow) {
		for j := range x {
			x[j] = z
		}
		return scale
	}
	floats.Scale(1/scale, x)
	return scale
}

func argmax(x []float64) int {
	j := 0
	v := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > v {
			v = x[i]
			j = i
		}
	}

	return j
}

// makeFloatArray makes a collection of r slices
// of length c, packed contiguously.
func makeFloatArray(r, c int) [][]float64 {

	bka := make([]float64, r*c)
	x := make([][]float64, r)
	ii := 0
	for j := 0; j < r; j++ {
		x[j] = bka[ii : ii+c]
		ii += c
	}

	return x
}
