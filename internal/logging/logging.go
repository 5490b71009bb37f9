// Package logging builds the zap loggers used by the command layer.
package logging

import (
	"go.uber.org/zap"
)

// New returns a sugared console logger writing to stderr. Verbose lowers
// the level from info to debug.
func New(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
