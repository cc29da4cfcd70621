package config

import (
	"io"

	"go.viam.com/dollygrip/logging"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitLoggingSettings applies the log section to logger. The command line debug flag wins over
// the configured level. The returned closer releases the log file, if any.
func InitLoggingSettings(logger logging.Logger, lc LogConfig, cmdLineDebugFlag bool) io.Closer {
	level := UpdateLoggingLevel(logger, lc, cmdLineDebugFlag)

	var closer io.Closer = nopCloser{}
	if lc.File != nil {
		var appender logging.ConsoleAppender
		appender, closer = logging.NewFileAppender(lc.File.FileConfig())
		logger.AddAppender(appender)
	}
	logger.Infow("log level initialized", "level", level.String())
	return closer
}

// UpdateLoggingLevel sets logger and every registered logger to the configured level, or to
// DEBUG when the command line debug flag is set, and returns the level applied.
func UpdateLoggingLevel(logger logging.Logger, lc LogConfig, cmdLineDebugFlag bool) logging.Level {
	level := lc.ParsedLevel()
	if cmdLineDebugFlag {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	logging.SetAllLevels(level)
	return level
}
