package config

import (
	"errors"
	"sync"

	"codecoach/pkg/logx"
)

// ErrMissingCredential is returned by GetAPIKey when no key is configured.
var ErrMissingCredential = errors.New("missing credential")

//nolint:gochecknoglobals // package logger
var (
	logger     *logx.Logger
	loggerOnce sync.Once
)

func getLogger() *logx.Logger {
	loggerOnce.Do(func() { logger = logx.NewLogger("config") })
	return logger
}
