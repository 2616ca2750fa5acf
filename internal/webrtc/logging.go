package webrtc

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/1ureka/datastream/internal/util"
)

// loggerFactory routes pion's internal logs into a util.Logger, tagged with
// the pion scope (ice, dtls, sctp, ...). Trace output is dropped and pion's
// info level is demoted to debug; it narrates every ICE state step.
type loggerFactory struct {
	log *util.Logger
}

func newLoggerFactory(log *util.Logger) logging.LoggerFactory {
	return loggerFactory{log: log}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{log: f.log.With("pion", scope)}
}

type scopedLogger struct {
	log *util.Logger
}

func (l *scopedLogger) Trace(string)          {}
func (l *scopedLogger) Tracef(string, ...any) {}

func (l *scopedLogger) Debug(msg string) { l.log.Debug(msg) }
func (l *scopedLogger) Info(msg string)  { l.log.Debug(msg) }
func (l *scopedLogger) Warn(msg string)  { l.log.Warn(msg) }
func (l *scopedLogger) Error(msg string) { l.log.Error(msg) }

func (l *scopedLogger) Debugf(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l *scopedLogger) Infof(format string, args ...any)  { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l *scopedLogger) Warnf(format string, args ...any)  { l.log.Warn(fmt.Sprintf(format, args...)) }
func (l *scopedLogger) Errorf(format string, args ...any) { l.log.Error(fmt.Sprintf(format, args...)) }
