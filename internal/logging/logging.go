// Package logging sets up the process logger and the wire-level
// protocol trace.
package logging

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the shared process logger. Level comes from LOG_LEVEL and
// may be overridden by configuration after startup.
var Logger = log.New(os.Stderr)

func init() {
	Logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
}

func parseLevel(s string) log.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return log.DebugLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel overrides the level picked up from the environment.
func SetLevel(s string) {
	Logger.SetLevel(parseLevel(s))
}

var trace = func(string, ...any) {}

func init() {
	debugLevel, err := strconv.ParseInt(os.Getenv("WAYLAND_DEBUG"), 10, 0)
	if err != nil {
		return
	}
	if debugLevel > 0 {
		trace = func(str string, args ...any) { Logger.Debugf(str, args...) }
	}
}

// Trace logs a wire-protocol message when WAYLAND_DEBUG is set.
func Trace(format string, args ...any) {
	trace(format, args...)
}
