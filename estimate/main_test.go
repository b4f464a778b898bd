package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlymcm/digitalhealth-project/config"
	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/hmmsim"
	"github.com/kimberlymcm/digitalhealth-project/obsio"
	"github.com/kimberlymcm/digitalhealth-project/runstore"
)

func writeSeries(t *testing.T, dir string) string {
	t.Helper()

	p := hmmlib.New(2)
	copy(p.Init, []float64{0.5, 0.5})
	copy(p.Trans, []float64{0.95, 0.05, 0.08, 0.92})
	copy(p.Mean, []float64{62, 82})
	copy(p.Std, []float64{3, 5})
	_, obs := hmmsim.Generate(p, 800, hmmlib.NewRand(3))

	var buf bytes.Buffer
	require.NoError(t, obsio.WriteObs(&buf, "bpm", obs, nil))
	fname := filepath.Join(dir, "hr.csv")
	require.NoError(t, os.WriteFile(fname, buf.Bytes(), 0o644))

	return fname
}

func TestEstimate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.CfgPathEnv, dir)
	input := writeSeries(t, dir)
	outdir := filepath.Join(dir, "runs")
	states := filepath.Join(dir, "states.csv")

	resetFlags()
	cmd := estimateCMD()
	cmd.SetArgs([]string{
		"--input", input,
		"--outdir", outdir,
		"--states", states,
		"--nrestart", "4",
		"--workers", "2",
		"--loglevel", "warn",
	})
	require.NoError(t, cmd.Execute())

	store, err := runstore.NewDir(outdir)
	require.NoError(t, err)
	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 5, "four runs and the best one")

	best, err := store.Load(runstore.BestKey)
	require.NoError(t, err)
	require.NotNil(t, best.Final)
	assert.Less(t, best.Final.Mean[0], best.Final.Mean[1])
	assert.InDelta(t, 62, best.Final.Mean[0], 1.5)
	assert.InDelta(t, 82, best.Final.Mean[1], 1.5)

	fid, err := os.Open(states)
	require.NoError(t, err)
	defer fid.Close()
	decoded, err := obsio.ReadColumn(fid, "state", 0)
	require.NoError(t, err)
	assert.Len(t, decoded, 800)
}

func TestEstimate_NoInput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.CfgPathEnv, dir)

	resetFlags()
	cmd := estimateCMD()
	cmd.SetArgs([]string{"--outdir", filepath.Join(dir, "runs")})
	assert.ErrorContains(t, cmd.Execute(), "input file is required")
}

func TestEstimate_BadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.CfgPathEnv, dir)

	resetFlags()
	cmd := estimateCMD()
	cmd.SetArgs([]string{"--input", writeSeries(t, dir), "--nrestart", "0"})
	assert.ErrorIs(t, cmd.Execute(), hmmlib.ErrInvalidConfig)
}
