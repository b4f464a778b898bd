// Command simstudy checks how well the estimator recovers known
// parameters.  Each replication simulates a series from a fixed model,
// fits it with random restarts and records the estimation errors and
// the state reconstruction error rate.
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/hmmsim"
	"github.com/kimberlymcm/digitalhealth-project/logging"
)

type study struct {
	nrep     int
	ntime    int
	nrestart int
	maxiter  int
	epsilon  float64
	outname  string
	loglevel string
}

// truth is the model the data are simulated from.
func truth() *hmmlib.Params {

	p := hmmlib.New(2)
	copy(p.Init, []float64{2.0 / 3, 1.0 / 3})
	copy(p.Trans, []float64{0.95, 0.05, 0.10, 0.90})
	copy(p.Mean, []float64{60, 80})
	copy(p.Std, []float64{3, 5})

	return p
}

func replicate(ctx context.Context, logger *zap.SugaredLogger, s *study, rep int, out io.Writer) error {

	tp := truth()
	states, obs := hmmsim.Generate(tp, s.ntime, hmmlib.NewRand(uint64(1000+rep)))

	cfg := hmmlib.DefaultConfig()
	cfg.NRestart = s.nrestart
	cfg.MaxIter = s.maxiter
	cfg.Epsilon = s.epsilon
	cfg.Seed = uint64(rep)

	batch, err := hmmlib.Fit(ctx, obs, cfg, hmmlib.Options{Logger: logger})
	if err != nil {
		return errors.Wrapf(err, "replication %d", rep)
	}

	est := batch.Best.Final.Clone()
	est.SortStates()

	pstates, _, err := hmmlib.Reconstruct(obs, est)
	if err != nil {
		return errors.Wrapf(err, "replication %d", rep)
	}
	nerr, n, err := hmmlib.CompareStates(pstates, states)
	if err != nil {
		return err
	}

	relerr := func(a, b float64) float64 { return math.Abs(a-b) / math.Abs(b) }
	_, err = fmt.Fprintf(out, "%d,%s,%.4f,%d,%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,%d,%d\n",
		rep, batch.Best.Status, batch.Best.FinalLogLike(), batch.Best.Iterations,
		relerr(est.Mean[0], tp.Mean[0]), relerr(est.Mean[1], tp.Mean[1]),
		relerr(est.Std[0], tp.Std[0]), relerr(est.Std[1], tp.Std[1]),
		est.Trans[0], est.Trans[3], nerr, n)

	return err
}

func run(ctx context.Context, s *study) error {

	lc := logging.DefaultLogConfig()
	lc.Level = s.loglevel
	logger, err := logging.NewSugaredLogger("simstudy", lc)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out, err := os.Create(s.outname)
	if err != nil {
		return errors.Wrap(err, "creating result file")
	}
	defer out.Close()

	head := "Run,Status,LLF,Iterations,ErrMean0,ErrMean1,ErrStd0,ErrStd1,Trans00,Trans11,ErrStates,Total\n"
	if _, err := io.WriteString(out, head); err != nil {
		return err
	}

	for rep := 0; rep < s.nrep; rep++ {
		if err := replicate(ctx, logger, s, rep, out); err != nil {
			return err
		}
		logger.Infof("finished replication %d", rep)
	}

	return out.Close()
}

func main() {

	s := &study{}

	cmd := &cobra.Command{
		Use:           "simstudy",
		Short:         "Check parameter recovery on simulated data",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), s)
		},
	}

	f := cmd.Flags()
	f.IntVar(&s.nrep, "nrep", 10, "Number of replications")
	f.IntVar(&s.ntime, "ntime", 1000, "Number of time points per replication")
	f.IntVar(&s.nrestart, "nrestart", 5, "Number of restarts per fit")
	f.IntVar(&s.maxiter, "maxiter", 50, "Maximum number of EM iterations")
	f.Float64Var(&s.epsilon, "epsilon", 0.5, "Convergence threshold")
	f.StringVar(&s.outname, "outname", "result.csv", "Result file")
	f.StringVar(&s.loglevel, "loglevel", "warn", "Log level")

	if err := cmd.Execute(); err != nil {
		_, _ = io.WriteString(os.Stderr, err.Error()+"\n")
		os.Exit(1)
	}
}
