package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// tbAppender routes formatted lines to a test's Log so output is grouped under the test.
type tbAppender struct {
	tb testing.TB
}

// NewTestAppender returns an Appender that writes each line with tb.Log.
func NewTestAppender(tb testing.TB) Appender {
	return tbAppender{tb: tb}
}

func (a tbAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.tb.Helper()
	line, err := formatLine(entry, fields)
	a.tb.Log(line)
	return err
}

func (a tbAppender) Sync() error {
	return nil
}

// NewTestLogger returns a Debug+ logger writing to tb in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is NewTestLogger plus an observer holding every entry for assertions.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	return newImpl("", DEBUG, false, NewTestAppender(tb), core), logs
}
