// Package main is the entry point for the searchlink connector.
package main

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/mooring-labs/searchlink/cmd/slk-connector/app"
	"github.com/mooring-labs/searchlink/internal/config"
	"github.com/mooring-labs/searchlink/internal/logger"
)

// applyEnvLogLevel reads the SLK_LOG_LEVEL environment variable and applies
// it to the process logger. The --debug flag still overrides this later.
func applyEnvLogLevel() {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		return
	}
	if err := logger.SetLevel(levelStr); err != nil {
		logger.Warnf("Invalid log level %q, using info", levelStr)
	}
}

func main() {
	// Logs go to stderr, keeping stdout clean for commands that output
	// data (e.g., version --format json, sync reports).
	logger.Initialize()
	defer func() {
		_ = logger.Sync()
	}()
	applyEnvLogLevel()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
