package utilities

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultService = "ewaste-auth"

// Config drives Init. LOG_* env vars map onto it through ConfigFromEnv.
type Config struct {
	Level   string
	Dev     bool
	Service string
	// File enables a daily rotated JSON log next to stdout.
	File       string
	MaxAgeDays int
}

func ConfigFromEnv() Config {
	cfg := Config{
		Level:      strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		Dev:        os.Getenv("LOG_DEV") == "1",
		Service:    os.Getenv("LOG_SERVICE"),
		File:       os.Getenv("LOG_FILE"),
		MaxAgeDays: 7,
	}
	if cfg.Level == "" {
		cfg.Level = "info"
		if cfg.Dev {
			cfg.Level = "debug"
		}
	}
	if v, err := strconv.Atoi(os.Getenv("LOG_MAX_AGE")); err == nil && v > 0 {
		cfg.MaxAgeDays = v
	}
	return cfg
}

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init builds the process logger. Dev mode without a file gives zap's
// colored console logger on stderr; everything else is JSON on stdout, teed
// into the rotated file when one is configured.
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	service := cfg.Service
	if service == "" {
		service = defaultService
	}

	if cfg.Dev && cfg.File == "" {
		dc := zap.NewDevelopmentConfig()
		dc.Level = zap.NewAtomicLevelAt(lvl)
		return dc.Build(zap.Fields(zap.String("service", service)))
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	json := zapcore.NewJSONEncoder(enc)

	sinks := []zapcore.Core{zapcore.NewCore(json, zapcore.Lock(os.Stdout), lvl)}
	if cfg.File != "" {
		w, err := newRotatingWriter(cfg.File, cfg.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.NewCore(json.Clone(), zapcore.AddSync(w), lvl))
	}

	return zap.New(zapcore.NewTee(sinks...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service", service)),
	), nil
}

// newRotatingWriter writes path.YYYYMMDD files and keeps path as a symlink
// to the current one.
func newRotatingWriter(path string, maxAgeDays int) (*rotatelogs.RotateLogs, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	rl, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("rotatelogs: %w", err)
	}
	return rl, nil
}
