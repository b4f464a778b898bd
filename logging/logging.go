// Package logging builds the zap loggers used by the commands.
package logging

import (
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls where log messages go and which are kept.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn or error

	// If Path is empty no log file is written.  Otherwise the file is
	// rotated with the pattern Path.YYYYMMDDHH.
	Path           string `mapstructure:"path"`
	RotationMaxAge int    `mapstructure:"rotationmaxage"` // days
	RotationTime   int    `mapstructure:"rotationtime"`   // hours
	RotationSize   int    `mapstructure:"rotationsize"`   // megabytes

	ShowLine     bool `mapstructure:"showline"`
	LogInConsole bool `mapstructure:"console"`
}

// DefaultLogConfig logs info messages to the console only.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:          "info",
		RotationMaxAge: 7,
		RotationTime:   24,
		RotationSize:   30,
		LogInConsole:   true,
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewSugaredLogger returns a logger with the given name.  Console
// output goes to stderr so that it does not mix with data written to
// stdout.
func NewSugaredLogger(name string, lc *LogConfig) (*zap.SugaredLogger, error) {

	lvl := parseLevel(lc.Level)
	priority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= lvl
	})

	var syncers []zapcore.WriteSyncer
	if lc.LogInConsole {
		syncers = append(syncers, zapcore.AddSync(os.Stderr))
	}
	if lc.Path != "" {
		w, err := rotatelogs.New(
			lc.Path+".%Y%m%d%H",
			rotatelogs.WithRotationTime(time.Duration(lc.RotationTime)*time.Hour),
			rotatelogs.WithRotationSize(int64(lc.RotationSize)*1024*1024),
			rotatelogs.WithMaxAge(24*time.Hour*time.Duration(lc.RotationMaxAge)),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "opening log file %s", lc.Path)
		}
		syncers = append(syncers, zapcore.AddSync(w))
	}
	if len(syncers) == 0 {
		return zap.NewNop().Sugar(), nil
	}

	levelEncoder := func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + l.CapitalString() + "]")
	}
	timeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "line",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...), priority)

	var opts []zap.Option
	if lc.ShowLine {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(core, opts...).Named(name).Sugar(), nil
}
