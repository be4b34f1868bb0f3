// Package logging holds the process-wide leveled logger. It is the same
// gommon logger echo uses, so request logs and pipeline logs share one
// output and one level.
package logging

import (
	"io"
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
)

const header = `${time_rfc3339} ${level} ${prefix} ${short_file}:${line}`

var (
	mu     sync.RWMutex
	logger = newLogger("kalibr")
)

func newLogger(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetLevel(log.INFO)
	return l
}

// L returns the shared logger.
func L() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLevel sets the level from a config string ("debug", "info", "warn",
// "error", "off"). Unknown strings fall back to info.
func SetLevel(level string) {
	L().SetLevel(ParseLevel(level))
}

// SetOutput redirects the shared logger.
func SetOutput(w io.Writer) {
	L().SetOutput(w)
}

// ParseLevel maps a config string onto a gommon level.
func ParseLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}

// New returns a child logger with its own prefix and the shared level.
func New(prefix string) *log.Logger {
	l := newLogger(prefix)
	l.SetLevel(L().Level())
	l.SetOutput(L().Output())
	return l
}
