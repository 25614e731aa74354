// Package logging builds the zap loggers used across the service.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/victoralfred/credit_sim/internal/config"
	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// New creates a logger writing to the output named in cfg
func New(cfg config.LogConfig) (*zap.Logger, error) {
	w, err := setupWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter creates a logger writing to w, ignoring cfg.Output
func NewWithWriter(cfg config.LogConfig, w io.Writer) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func setupWriter(cfg config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("file path required for file output")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q: %w", level, err)
	}
	return lvl, nil
}

// RunFields are the fields attached to every log line about a run
func RunFields(run *credit.Run) []zap.Field {
	return []zap.Field{
		zap.String("run_id", run.ID),
		zap.Int64("portfolio_id", run.PortfolioID),
		zap.Int("paths", run.Paths),
		zap.Int64("seed", run.Seed),
		zap.Strings("tenors", run.Tenors),
	}
}

// ErrorFields flattens a RiskError's code and category for querying
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var re *credit.RiskError
	if errors.As(err, &re) {
		fields = append(fields,
			zap.String("error_code", string(re.Code)),
			zap.String("error_category", string(re.Category)),
			zap.String("error_severity", string(re.Severity)),
		)
	}
	var ne *credit.NumericError
	if errors.As(err, &ne) {
		fields = append(fields,
			zap.Int("path_index", ne.PathIndex),
			zap.Int("entity_index", ne.EntityIndex),
			zap.String("stage", ne.Stage),
		)
	}
	return fields
}
