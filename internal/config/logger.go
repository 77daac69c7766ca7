package config

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/xerrors"
)

// NewLogger builds the logr logger handed to the capture packages. Each verbosity step
// enables one more V level.
func NewLogger(verbosity int, development bool) (logr.Logger, error) {
	c := zap.NewProductionConfig()
	if development {
		c = zap.NewDevelopmentConfig()
	}
	c.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	l, err := c.Build()
	if err != nil {
		return logr.Discard(), xerrors.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(l), nil
}
