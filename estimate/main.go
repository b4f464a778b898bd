// Command estimate fits a Gaussian hidden Markov model to a heart rate
// series with EM from many random starting points, stores every run and
// reports the best one.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/kimberlymcm/digitalhealth-project/config"
	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/logging"
	"github.com/kimberlymcm/digitalhealth-project/obsio"
	"github.com/kimberlymcm/digitalhealth-project/runstore"
)

var flags *pflag.FlagSet

var (
	cfgPathFlag  string
	progressFlag bool
)

// Viper keys that can be overridden from the command line, with the
// name of the flag that sets them.
var bindings = map[string]string{
	"input.path":     "input",
	"input.column":   "column",
	"input.limit":    "limit",
	"outdir":         "outdir",
	"states":         "states",
	"timeout":        "timeout",
	"model.nstate":   "nstate",
	"model.nrestart": "nrestart",
	"model.maxiter":  "maxiter",
	"model.epsilon":  "epsilon",
	"model.seed":     "seed",
	"model.workers":  "workers",
	"log.level":      "loglevel",
	"log.path":       "logpath",
}

func init() {
	resetFlags()
}

// Explicitly define a method to facilitate tests
func resetFlags() {

	flags = &pflag.FlagSet{}

	d := config.Defaults()
	flags.StringVarP(&cfgPathFlag, "config", "c", "", "Configuration file")
	flags.BoolVar(&progressFlag, "progress", false, "Show a progress bar")
	flags.StringP("input", "i", "", "CSV file with the observations")
	flags.String("column", d.Input.Column, "Column holding the observations")
	flags.Int("limit", d.Input.Limit, "Use at most this many observations, 0 for all")
	flags.StringP("outdir", "o", d.OutDir, "Directory for the run records")
	flags.String("states", "", "Write the decoded state sequence to this CSV file")
	flags.Duration("timeout", 0, "Give up after this long, 0 for no limit")
	flags.Int("nstate", d.Model.NState, "Number of hidden states")
	flags.Int("nrestart", d.Model.NRestart, "Number of random restarts")
	flags.Int("maxiter", d.Model.MaxIter, "Maximum number of EM iterations per restart")
	flags.Float64("epsilon", d.Model.Epsilon, "Log-likelihood change that counts as converged")
	flags.Uint64("seed", d.Model.Seed, "Seed for the starting values")
	flags.Int("workers", d.Model.Workers, "Restarts run in parallel, 0 for one per CPU")
	flags.String("loglevel", d.Log.Level, "Log level: debug, info, warn or error")
	flags.String("logpath", "", "Also write logs to this rotating file")
}

func attachFlags(cmd *cobra.Command) {

	cmdFlags := cmd.Flags()
	flags.VisitAll(func(f *pflag.Flag) {
		cmdFlags.AddFlag(f)
	})
}

func run(cmd *cobra.Command) error {

	s, err := config.Load(config.New(), cfgPathFlag, cmd.Flags(), bindings)
	if err != nil {
		return err
	}

	logger, err := logging.NewSugaredLogger("estimate", &s.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	obs, err := readObs(s.Input)
	if err != nil {
		return err
	}
	if err := hmmlib.CheckObs(obs); err != nil {
		return err
	}
	mn, sd := stat.MeanStdDev(obs, nil)
	logger.Infof("%d observations from %s, mean %.2f, sd %.2f", len(obs), s.Input.Path, mn, sd)

	store, err := runstore.NewDir(s.OutDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var progress io.Writer
	if progressFlag {
		progress = os.Stderr
	}

	batch, err := hmmlib.Fit(ctx, obs, s.Model, hmmlib.Options{
		Logger:   logger,
		Sink:     store,
		Progress: progress,
	})
	if errors.Is(err, hmmlib.ErrAllDiverged) {
		logger.Errorf("all %d restarts diverged, records are in %s", len(batch.Runs), store.Path())
		return err
	} else if err != nil {
		return err
	}
	report(logger, batch)

	best := *batch.Best
	best.Final = best.Final.Clone()
	best.Final.SortStates()
	if err := store.PutBest(&best); err != nil {
		return err
	}

	if err := hmmlib.WriteSummary(os.Stdout, best.Final, fmt.Sprintf("Best run %s:", best.ID), nil); err != nil {
		return err
	}
	fmt.Printf("Final log-likelihood: %f\n", best.FinalLogLike())

	if s.States == "" {
		return nil
	}

	return writeStates(logger, s.States, obs, best.Final)
}

func readObs(in config.Input) ([]float64, error) {

	if in.Path == "" {
		return nil, errors.New("an input file is required")
	}

	fid, err := os.Open(in.Path)
	if err != nil {
		return nil, errors.Wrap(err, "opening input")
	}
	defer fid.Close()

	return obsio.ReadColumn(fid, in.Column, in.Limit)
}

func report(logger *zap.SugaredLogger, batch *hmmlib.Batch) {

	count := make(map[hmmlib.Status]int)
	for _, r := range batch.Runs {
		count[r.Status]++
	}
	logger.Infof("%d converged, %d reached the iteration cap, %d diverged",
		count[hmmlib.Converged], count[hmmlib.MaxStepsReached], count[hmmlib.Diverged])
}

func writeStates(logger *zap.SugaredLogger, fname string, obs []float64, par *hmmlib.Params) error {

	states, lp, err := hmmlib.Reconstruct(obs, par)
	if err != nil {
		return err
	}
	logger.Infof("Viterbi path log-probability %f", lp)

	fid, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "creating state file")
	}
	defer fid.Close()

	if err := obsio.WriteStates(fid, obs, states); err != nil {
		return err
	}

	return fid.Close()
}

func estimateCMD() *cobra.Command {

	cmd := &cobra.Command{
		Use:           "estimate",
		Short:         "Fit a two-state heart rate HMM",
		Long:          "Fit a Gaussian hidden Markov model with Baum-Welch from random restarts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	attachFlags(cmd)

	return cmd
}

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := estimateCMD().ExecuteContext(ctx); err != nil {
		_, _ = io.WriteString(os.Stderr, err.Error()+"\n")
		stop()
		os.Exit(1)
	}
}
