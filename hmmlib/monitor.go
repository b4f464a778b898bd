package hmmlib

import "math"

// Status is the state of a single EM run.
type Status uint8

const (
	Running Status = iota
	Converged
	MaxStepsReached
	Diverged
)

var statusNames = map[Status]string{
	Running:         "running",
	Converged:       "converged",
	MaxStepsReached: "max-steps",
	Diverged:        "diverged",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal returns true if no further iterations should be done.
func (s Status) Terminal() bool {
	return s != Running
}

// Monitor tracks the log-likelihood trace of one run and decides when
// the run stops.
type Monitor struct {
	maxIter int
	eps     float64
	tol     float64

	llf    []float64
	status Status
}

// NewMonitor returns a Monitor that allows at most maxIter EM updates.
// The run converges when the log-likelihood changes by less than eps,
// and diverges when it drops by more than tol*max(1, |llf|).
func NewMonitor(maxIter int, eps, tol float64) *Monitor {
	return &Monitor{
		maxIter: maxIter,
		eps:     eps,
		tol:     tol,
		llf:     make([]float64, 0, maxIter+1),
	}
}

// Observe records the log-likelihood of the current parameters and
// returns the updated status.  Once the status is terminal further
// calls have no effect.
func (m *Monitor) Observe(llf float64) Status {

	if m.status.Terminal() {
		return m.status
	}

	if math.IsNaN(llf) || math.IsInf(llf, 0) {
		m.status = Diverged
		return m.status
	}
	m.llf = append(m.llf, llf)

	n := len(m.llf)
	if n == 1 {
		return m.status
	}

	d := llf - m.llf[n-2]
	switch {
	case d < -m.tol*math.Max(1, math.Abs(llf)):
		m.status = Diverged
	case math.Abs(d) < m.eps:
		m.status = Converged
	case n-1 >= m.maxIter:
		m.status = MaxStepsReached
	}

	return m.status
}

// Fail marks the run as diverged, e.g. after a degenerate
// forward-backward sweep.
func (m *Monitor) Fail() {
	m.status = Diverged
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	return m.status
}

// LogLike returns the recorded log-likelihood trace.  Non-finite
// values are never recorded.
func (m *Monitor) LogLike() []float64 {
	return m.llf
}

// Iterations returns the number of completed EM updates.
func (m *Monitor) Iterations() int {
	if len(m.llf) == 0 {
		return 0
	}
	return len(m.llf) - 1
}
