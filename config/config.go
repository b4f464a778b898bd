// Package config loads the settings of the estimate command from a
// YAML file, the environment and command line flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kimberlymcm/digitalhealth-project/hmmlib"
	"github.com/kimberlymcm/digitalhealth-project/logging"
)

const (
	envPrefix  = "hrhmm"
	configName = "hrhmm_config"

	// CfgPathEnv names a directory searched for hrhmm_config.yaml.
	CfgPathEnv = "HRHMM_CFG_PATH"
)

// Input describes where the observations come from.
type Input struct {
	Path   string `mapstructure:"path"`
	Column string `mapstructure:"column"`
	Limit  int    `mapstructure:"limit"`
}

// Settings is everything the estimate command needs.
type Settings struct {
	Model   hmmlib.Config     `mapstructure:"model"`
	Input   Input             `mapstructure:"input"`
	OutDir  string            `mapstructure:"outdir"`
	States  string            `mapstructure:"states"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Log     logging.LogConfig `mapstructure:"log"`
}

// Defaults returns the settings used when nothing else is given.  The
// input limit of 20160 rows is two weeks of minute data.
func Defaults() Settings {
	return Settings{
		Model:  hmmlib.DefaultConfig(),
		Input:  Input{Column: "bpm", Limit: 20160},
		OutDir: "hmm_logs",
		Log:    *logging.DefaultLogConfig(),
	}
}

// New returns a viper instance holding the defaults, reading the
// environment with the HRHMM_ prefix.
func New() *viper.Viper {

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	d := Defaults()
	v.SetDefault("model.nstate", d.Model.NState)
	v.SetDefault("model.nrestart", d.Model.NRestart)
	v.SetDefault("model.maxiter", d.Model.MaxIter)
	v.SetDefault("model.epsilon", d.Model.Epsilon)
	v.SetDefault("model.decreasetol", d.Model.DecreaseTol)
	v.SetDefault("model.minstd", d.Model.MinStd)
	v.SetDefault("model.seed", d.Model.Seed)
	v.SetDefault("model.workers", d.Model.Workers)
	v.SetDefault("model.initprob", d.Model.InitProb)
	v.SetDefault("model.transdiag", rangeMap(d.Model.TransDiag))
	v.SetDefault("model.meanranges", []map[string]interface{}{
		rangeMap(d.Model.MeanRanges[0]), rangeMap(d.Model.MeanRanges[1]),
	})
	v.SetDefault("model.stdrange", rangeMap(d.Model.StdRange))
	v.SetDefault("input.column", d.Input.Column)
	v.SetDefault("input.limit", d.Input.Limit)
	v.SetDefault("outdir", d.OutDir)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.rotationmaxage", d.Log.RotationMaxAge)
	v.SetDefault("log.rotationtime", d.Log.RotationTime)
	v.SetDefault("log.rotationsize", d.Log.RotationSize)
	v.SetDefault("log.console", d.Log.LogInConsole)

	return v
}

func rangeMap(r hmmlib.Range) map[string]interface{} {
	return map[string]interface{}{"lo": r.Lo, "hi": r.Hi}
}

// Load reads the settings.  If cfgFile is empty, hrhmm_config.yaml is
// looked up in $HRHMM_CFG_PATH or the working directory; a missing file
// is not an error in that case.  Flags that were set on the command
// line take precedence over the file, and are bound through the keys in
// bind (viper key -> flag name).
func Load(v *viper.Viper, cfgFile string, flags *pflag.FlagSet, bind map[string]string) (*Settings, error) {

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		altPath := os.Getenv(CfgPathEnv)
		if altPath == "" {
			altPath = "."
		}
		v.AddConfigPath(altPath)
		v.SetConfigName(configName)
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &nf) {
			return nil, errors.Wrap(err, "reading configuration")
		}
	}

	for key, name := range bind {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "binding flag %s", name)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if err := s.Model.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}
