// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder, level and extra outputs.
type Config struct {
	Development bool
	// Level is a zap level name; empty keeps the preset's default.
	Level string
	// OutputPaths are added to stderr, e.g. a run log file.
	OutputPaths []string
}

// New builds a zap.Logger configured for development or production.
func New(c Config) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
		// Every output shares one encoder; files must not get ANSI codes.
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if hasOutputs(c.OutputPaths) {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"

	if lvl := strings.TrimSpace(c.Level); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = level
	}
	for _, p := range c.OutputPaths {
		if p = strings.TrimSpace(p); p != "" {
			cfg.OutputPaths = append(cfg.OutputPaths, p)
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		if c.Development {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

func hasOutputs(paths []string) bool {
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}
