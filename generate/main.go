// Command generate simulates a heart rate series from a Gaussian hidden
// Markov model with known parameters and writes it as CSV.
package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/hmmsim"
	"github.com/kimberlymcm/digitalhealth-project/obsio"
)

type model struct {
	ntime      int
	seed       uint64
	init       []float64
	trans      []float64
	mean       []float64
	std        []float64
	column     string
	outname    string
	withStates bool
}

func (m *model) params() (*hmmlib.Params, error) {

	k := len(m.mean)
	p := hmmlib.New(k)
	if len(m.init) != k || len(m.trans) != k*k || len(m.std) != k {
		return nil, errors.Wrapf(hmmlib.ErrInvalidParams,
			"%d means need %d initial, %d transition and %d sd values", k, k, k*k, k)
	}
	copy(p.Init, m.init)
	copy(p.Trans, m.trans)
	copy(p.Mean, m.mean)
	copy(p.Std, m.std)

	return p, p.Validate()
}

func generate(m *model, w io.Writer) error {

	p, err := m.params()
	if err != nil {
		return err
	}

	states, obs := hmmsim.Generate(p, m.ntime, hmmlib.NewRand(m.seed))
	if !m.withStates {
		states = nil
	}

	return obsio.WriteObs(w, m.column, obs, states)
}

func generateCMD() *cobra.Command {

	m := &model{}

	cmd := &cobra.Command{
		Use:           "generate",
		Short:         "Simulate a series from a Gaussian HMM",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if m.outname == "" {
				return generate(m, os.Stdout)
			}

			fid, err := os.Create(m.outname)
			if err != nil {
				return errors.Wrap(err, "creating output")
			}
			defer fid.Close()

			if err := generate(m, fid); err != nil {
				return err
			}
			return fid.Close()
		},
	}

	f := cmd.Flags()
	f.IntVar(&m.ntime, "ntime", 1000, "Number of time points")
	f.Uint64Var(&m.seed, "seed", 1, "Random seed")
	f.Float64SliceVar(&m.init, "init", []float64{0.66, 0.34}, "Initial state probabilities")
	f.Float64SliceVar(&m.trans, "trans", []float64{0.95, 0.05, 0.10, 0.90}, "Transition matrix, row-major")
	f.Float64SliceVar(&m.mean, "mean", []float64{60, 80}, "Emission means")
	f.Float64SliceVar(&m.std, "std", []float64{3, 5}, "Emission standard deviations")
	f.StringVar(&m.column, "column", "bpm", "Name of the observation column")
	f.StringVarP(&m.outname, "outname", "o", "", "Output file, stdout if empty")
	f.BoolVar(&m.withStates, "states", false, "Also write the true states")

	return cmd
}

func main() {

	if err := generateCMD().Execute(); err != nil {
		_, _ = io.WriteString(os.Stderr, err.Error()+"\n")
		os.Exit(1)
	}
}
