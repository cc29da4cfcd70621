package mqtt

import (
	"context"
	"log/slog"

	"go.viam.com/dollygrip/logging"
)

// slogHandler forwards the broker's slog records to a Logger.
type slogHandler struct {
	logger logging.Logger
	attrs  []interface{}
}

func newSlogLogger(logger logging.Logger) *slog.Logger {
	return slog.New(&slogHandler{logger: logger})
}

func (h *slogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	switch {
	case level >= slog.LevelError:
		return h.logger.GetLevel() <= logging.ERROR
	case level >= slog.LevelWarn:
		return h.logger.GetLevel() <= logging.WARN
	case level >= slog.LevelInfo:
		return h.logger.GetLevel() <= logging.INFO
	default:
		return h.logger.GetLevel() <= logging.DEBUG || logging.IsDebugMode(ctx)
	}
}

func (h *slogHandler) Handle(ctx context.Context, record slog.Record) error {
	keysAndValues := append([]interface{}(nil), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		keysAndValues = append(keysAndValues, attr.Key, attr.Value.Any())
		return true
	})
	switch {
	case record.Level >= slog.LevelError:
		h.logger.Errorw(record.Message, keysAndValues...)
	case record.Level >= slog.LevelWarn:
		h.logger.Warnw(record.Message, keysAndValues...)
	case record.Level >= slog.LevelInfo:
		h.logger.Infow(record.Message, keysAndValues...)
	default:
		h.logger.CDebugw(ctx, record.Message, keysAndValues...)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &slogHandler{logger: h.logger, attrs: append([]interface{}(nil), h.attrs...)}
	for _, attr := range attrs {
		next.attrs = append(next.attrs, attr.Key, attr.Value.Any())
	}
	return next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{logger: h.logger.Sublogger(name), attrs: h.attrs}
}
