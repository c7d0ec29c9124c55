// Package pfslog provides the advisory logging callback used while building
// a PFS image. It never influences control flow: every builder call site
// must behave identically whether or not a logger is attached.
package pfslog

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger receives phase-boundary strings and diagnostic messages emitted
// while a Builder runs. Implementations are expected to be safe for
// concurrent use even though the builder itself is single-threaded, since a
// caller may share one Logger across multiple sequential builds.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsInfoEnabled() bool
	IsDebugEnabled() bool
}

// Nop is a Logger that discards everything. It is the default used by
// NewBuilder when no Logger is supplied.
var Nop Logger = &nopLogger{}

type nopLogger struct{}

func (*nopLogger) Debugf(string, ...interface{}) {}
func (*nopLogger) Errorf(string, ...interface{}) {}
func (*nopLogger) Infof(string, ...interface{})  {}
func (*nopLogger) Printf(string, ...interface{}) {}
func (*nopLogger) Warnf(string, ...interface{})  {}
func (*nopLogger) IsInfoEnabled() bool           { return false }
func (*nopLogger) IsDebugEnabled() bool          { return false }

// CLI is a terminal-oriented Logger backed by logrus, with fatih/color used
// to highlight warnings and errors on TTYs.
type CLI struct {
	DisableColors bool
	IsDebug       bool
	IsVerbose     bool
	lock          sync.Mutex
}

// Debugf logs at trace level, matching the teacher's convention of
// collapsing "debug" into logrus's most verbose level.
func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(format, x...)
	}
}

// Errorf logs at error level, painted red when colors are enabled.
func (log *CLI) Errorf(format string, x ...interface{}) {
	log.lock.Lock()
	defer log.lock.Unlock()
	msg := fmt.Sprintf(format, x...)
	if !log.DisableColors {
		msg = color.RedString(msg)
	}
	logrus.Errorln(msg)
}

// Infof logs at info level when verbose output was requested.
func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose || log.IsDebug {
		logrus.Infof(format, x...)
	}
}

// Printf always logs at info level, regardless of verbosity.
func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Infof(format, x...)
}

// Warnf logs at warn level, painted yellow when colors are enabled.
func (log *CLI) Warnf(format string, x ...interface{}) {
	log.lock.Lock()
	defer log.lock.Unlock()
	msg := fmt.Sprintf(format, x...)
	if !log.DisableColors {
		msg = color.YellowString(msg)
	}
	logrus.Warnln(msg)
}

// IsInfoEnabled reports whether Infof calls will actually be emitted.
func (log *CLI) IsInfoEnabled() bool {
	return log.IsVerbose || log.IsDebug
}

// IsDebugEnabled reports whether Debugf passes its calls on to logrus.
// They are logged at trace level, which logrus drops unless its own level
// has been set to logrus.TraceLevel.
func (log *CLI) IsDebugEnabled() bool {
	return log.IsDebug
}
