// Package xlog provides a per-component leveled logger on top of glog.
//
// A Logger carries a component name and prefixes every line with it, so
// that log lines are attributable to the component that produced them
// (the agentcore binary creates one, "agentcore", and hands it to the
// pipeline and the ingest executor), without resorting to
// a forked glog build (the teacher vendors its own copy under
// 3rdparty/glog; this module depends on the real github.com/golang/glog
// instead and layers the per-component naming on top).
package xlog

import (
	"fmt"

	"github.com/golang/glog"
)

// Logger is a named wrapper around glog. The zero value is unusable; get
// one via New.
type Logger struct {
	component string
}

// New returns a Logger that prefixes every line with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	glog.InfoDepth(1, l.prefix(format, args...))
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, l.prefix(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, l.prefix(format, args...))
}

// Fatalf logs and aborts the process. Reserved for the Fatal error class
// in spec §7 (corrupt buffer index, broken invariant) — never for
// contained errors like ParseError or OutOfRange.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	glog.FatalDepth(1, l.prefix(format, args...))
}

// V reports whether glog verbose logging at level is enabled; the
// setting is process-wide, not per Logger.
// Callers gate expensive formatting behind it:
//
//	if l.V(2) { l.Infof("checkpoint %s: merged %d entries", id, n) }
func (l *Logger) V(level glog.Level) bool {
	return bool(glog.V(level))
}

func (l *Logger) prefix(format string, args ...interface{}) string {
	if len(args) == 0 {
		return "[" + l.component + "] " + format
	}
	return "[" + l.component + "] " + fmt.Sprintf(format, args...)
}
