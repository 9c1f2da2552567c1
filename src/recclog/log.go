// Package recclog sets up the single process-wide logger every other
// package logs through, following src/cli/logging's singleton-plus-backend
// shape but trimmed to what a one-shot CLI needs: no interactive console
// redraw, just a leveled stderr (and optional file) backend.
package recclog

import (
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

// Log is the singleton logger every recc package retrieves a named child
// of via Named.
var Log = logging.MustGetLogger("recc")

// Named returns a logger tagged with name, sharing Log's configured
// backend and level.
func Named(name string) *logging.Logger {
	return logging.MustGetLogger("recc/" + name)
}

var formatter = logging.MustStringFormatter(
	"%{time:15:04:05.000} %{level:.4s} %{module}: %{message}",
)

// Init installs a stderr backend at level, and, if logFile is non-empty, an
// independent file backend at fileLevel. The two levels are applied
// separately; neither is adjusted to match the other.
func Init(level logging.Level, logFile string, fileLevel logging.Level) error {
	console := logging.NewBackendFormatter(logging.NewLogBackend(os.Stderr, "", 0), formatter)
	consoleLeveled := logging.AddModuleLevel(console)
	consoleLeveled.SetLevel(level, "")

	if logFile == "" {
		logging.SetBackend(consoleLeveled)
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	file := logging.NewBackendFormatter(logging.NewLogBackend(f, "", 0), formatter)
	fileLeveled := logging.AddModuleLevel(file)
	if fileLevel < level {
		fileLevel = level
	}
	fileLeveled.SetLevel(fileLevel, "")
	logging.SetBackend(consoleLeveled, fileLeveled)
	return nil
}
