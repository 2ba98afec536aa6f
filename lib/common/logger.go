package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// levelTags maps the dragonboat log levels to the tag printed in front of a
// message. The map also defines which names ParseLogLevel accepts.
var levelTags = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// Logging describes the output of the dMap loggers. The packages obtain their
// loggers with logger.GetLogger(name); Install replaces the implementation
// behind these names. Lines are formatted as "LEVEL | package | message".
type Logging struct {
	Level  logger.LogLevel
	Output io.Writer
	// Names of the loggers the level is applied to
	Names []string
}

// NewLogging returns the logging setup for config, writing to stderr
func NewLogging(config Config) (Logging, error) {
	level, err := ParseLogLevel(config.LogLevel)
	if err != nil {
		return Logging{}, err
	}
	return Logging{
		Level:  level,
		Output: os.Stderr,
		Names:  []string{"index", "listener", "observable", "cmd"},
	}, nil
}

// Factory returns a dragonboat logger factory writing to the configured
// output. New loggers start at the configured level.
func (lg Logging) Factory() logger.Factory {
	out := log.New(lg.Output, "", log.Ldate|log.Ltime)
	return func(pkgName string) logger.ILogger {
		l := &pkgLogger{name: pkgName, out: out}
		l.SetLevel(lg.Level)
		return l
	}
}

var installOnce sync.Once

// Install sets the logger factory (once per process, dragonboat panics on a
// second factory) and applies the level to all named loggers
func (lg Logging) Install() {
	installOnce.Do(func() {
		logger.SetLoggerFactory(lg.Factory())
	})
	for _, name := range lg.Names {
		logger.GetLogger(name).SetLevel(lg.Level)
	}
}

// InitLoggers installs the logging setup described by config
func InitLoggers(config Config) error {
	lg, err := NewLogging(config)
	if err != nil {
		return err
	}
	lg.Install()
	return nil
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a
// logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	name := strings.ToUpper(level)
	if name == "WARNING" {
		name = "WARN"
	}
	for l, tag := range levelTags {
		if tag == name && l != logger.CRITICAL {
			return l, nil
		}
	}
	return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
}

// --------------------------------------------------------------------------
// Package logger
// --------------------------------------------------------------------------

// pkgLogger is the logger.ILogger created by the Logging factory
type pkgLogger struct {
	name  string
	level atomic.Int64
	out   *log.Logger
}

func (l *pkgLogger) SetLevel(level logger.LogLevel) { l.level.Store(int64(level)) }

func (l *pkgLogger) Debugf(format string, args ...interface{}) { l.logf(logger.DEBUG, format, args) }

func (l *pkgLogger) Infof(format string, args ...interface{}) { l.logf(logger.INFO, format, args) }

func (l *pkgLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args)
}

func (l *pkgLogger) Errorf(format string, args ...interface{}) { l.logf(logger.ERROR, format, args) }

// Panicf logs the message and panics with it, regardless of the level
func (l *pkgLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%-5s | %-10s | %s", levelTags[logger.CRITICAL], l.name, msg)
	panic(msg)
}

func (l *pkgLogger) logf(level logger.LogLevel, format string, args []interface{}) {
	if logger.LogLevel(l.level.Load()) < level {
		return
	}
	l.out.Printf("%-5s | %-10s | %s", levelTags[level], l.name, fmt.Sprintf(format, args...))
}
