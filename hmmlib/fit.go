package hmmlib

import (
	"context"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// RunResult is the outcome of one restart.  It is not modified after
// the run terminates.
type RunResult struct {
	ID RunID

	// The starting and final parameters.  For a diverged run Final holds
	// the last parameters with a valid log-likelihood.
	Initial *Params
	Final   *Params

	// LogLike[i] is the log-likelihood before the i-th EM update
	LogLike []float64

	// Number of EM updates performed
	Iterations int

	Status Status

	// Reason for divergence, empty otherwise
	Err string
}

// Converged returns true if the run met the convergence threshold.
func (r *RunResult) Converged() bool {
	return r.Status == Converged
}

// FinalLogLike returns the last recorded log-likelihood, or -Inf if
// none was recorded.
func (r *RunResult) FinalLogLike() float64 {
	if len(r.LogLike) == 0 {
		return math.Inf(-1)
	}
	return r.LogLike[len(r.LogLike)-1]
}

// Sink receives each run as it terminates.  Put may be called from
// several goroutines at once, each with a different RunID.
type Sink interface {
	Put(res *RunResult) error
}

// Options holds the collaborators of Fit.  The zero value is usable.
type Options struct {

	// Log messages are written here, nil discards them.
	Logger *zap.SugaredLogger

	// Terminated runs are passed to Sink if it is not nil.
	Sink Sink

	// A progress bar is drawn here if it is not nil.
	Progress io.Writer
}

// Batch holds the results of all restarts in schedule order.
type Batch struct {
	Runs []*RunResult
	Best *RunResult
}

// CheckObs returns an error wrapping ErrInvalidObs unless obs has at
// least two values, all of them finite.
func CheckObs(obs []float64) error {

	if len(obs) < 2 {
		return errors.Wrapf(ErrInvalidObs, "need at least 2 observations, got %d", len(obs))
	}
	for t, y := range obs {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return errors.Wrapf(ErrInvalidObs, "observation %d is %g", t, y)
		}
	}

	return nil
}

// FitRun runs EM from one starting point until the run converges,
// reaches the iteration cap or diverges.  Divergence is reported in the
// result, the returned error is only set if ctx is done.
func FitRun(ctx context.Context, obs []float64, cfg Config, rs Restart, logger *zap.SugaredLogger) (*RunResult, error) {

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("run", rs.ID.String())

	mon := NewMonitor(cfg.MaxIter, cfg.Epsilon, cfg.DecreaseTol)
	res := &RunResult{
		ID:      rs.ID,
		Initial: rs.Params.Clone(),
	}

	par := rs.Params.Clone()
	final := par
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tb, err := ForwardBackward(obs, par)
		if err != nil {
			mon.Fail()
			res.Err = err.Error()
			break
		}

		st := mon.Observe(tb.LogLike)
		logger.Debugf("iteration %d llf=%f", mon.Iterations(), tb.LogLike)
		if st == Diverged {
			res.Err = "log-likelihood decreased or is not finite"
			break
		}
		final = par
		if st.Terminal() {
			break
		}

		next, adj := Update(obs, tb, par, cfg.MinStd)
		if len(adj.Starved) > 0 {
			logger.Warnf("states %v have no posterior weight", adj.Starved)
		}
		if len(adj.Floored) > 0 {
			logger.Debugf("standard deviation floored for states %v", adj.Floored)
		}
		par = next
	}

	res.Final = final
	res.Status = mon.Status()
	res.Iterations = mon.Iterations()
	res.LogLike = append([]float64(nil), mon.LogLike()...)

	if res.Status == Diverged {
		logger.Warnw("run diverged", "iterations", res.Iterations, "reason", res.Err)
	} else {
		logger.Infow("run finished", "status", res.Status.String(),
			"iterations", res.Iterations, "llf", res.FinalLogLike())
	}

	return res, nil
}

// Fit draws cfg.NRestart starting points from a generator seeded with
// cfg.Seed and runs EM from each of them on a pool of cfg.Workers
// goroutines.  The result does not depend on the number of workers.
//
// If every restart diverges the returned Batch holds the diverged runs
// and the error wraps ErrAllDiverged.
func Fit(ctx context.Context, obs []float64, cfg Config, opts Options) (*Batch, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := CheckObs(obs); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	restarts := NewScheduler(cfg, NewRand(cfg.Seed)).Schedule()

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(restarts) {
		workers = len(restarts)
	}
	logger.Infof("%d observations, %d states, %d restarts on %d workers",
		len(obs), cfg.NState, len(restarts), workers)

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(restarts),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("restarts"),
			progressbar.OptionShowCount())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runs := make([]*RunResult, len(restarts))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var mut sync.Mutex
	var firstErr error
	fail := func(err error) {
		mut.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mut.Unlock()
		cancel()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := FitRun(ctx, obs, cfg, restarts[i], logger)
				if err != nil {
					fail(err)
					continue
				}
				if opts.Sink != nil {
					if err := opts.Sink.Put(res); err != nil {
						fail(errors.Wrapf(err, "storing %s", res.ID))
						continue
					}
				}
				runs[i] = res
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}

	for i := range restarts {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if bar != nil {
		_ = bar.Finish()
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := &Batch{Runs: runs}
	best, err := SelectBest(runs)
	if err != nil {
		return batch, err
	}
	batch.Best = best
	logger.Infow("best run", "run", best.ID.String(), "llf", best.FinalLogLike(),
		"iterations", best.Iterations, "status", best.Status.String())

	return batch, nil
}

// SelectBest returns the run with the largest final log-likelihood,
// ignoring diverged runs.  Ties go to the run with fewer iterations and
// then to the earlier restart.
func SelectBest(runs []*RunResult) (*RunResult, error) {

	var best *RunResult
	for _, r := range runs {
		if r == nil || r.Status == Diverged {
			continue
		}
		if best == nil || better(r, best) {
			best = r
		}
	}

	if best == nil {
		return nil, errors.Wrapf(ErrAllDiverged, "%d restarts", len(runs))
	}

	return best, nil
}

func better(a, b *RunResult) bool {

	la, lb := a.FinalLogLike(), b.FinalLogLike()
	switch {
	case la != lb:
		return la > lb
	case a.Iterations != b.Iterations:
		return a.Iterations < b.Iterations
	default:
		return a.ID.Seq < b.ID.Seq
	}
}
