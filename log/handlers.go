package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/colorfulnotion/icagent/common"
)

type discardHandler struct{}

// DiscardHandler returns a handler that drops every record.
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

func levelColor(l slog.Level) string {
	switch {
	case l >= LevelCrit:
		return common.ColorRed
	case l >= slog.LevelError:
		return common.ColorRed
	case l >= slog.LevelWarn:
		return common.ColorYellow
	case l >= slog.LevelInfo:
		return common.ColorGreen
	case l >= slog.LevelDebug:
		return common.ColorCyan
	}
	return common.ColorGray
}

// levelName is the fixed-width name printed for a level.
func levelName(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO "
	case slog.LevelWarn:
		return "WARN "
	case slog.LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT "
	}
	return l.String()
}

// replaceLevel renders the custom trace and crit levels by name.
func replaceLevel(useColor bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) != 0 || a.Key != slog.LevelKey {
			return a
		}
		lvl, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		name := levelName(lvl)
		if useColor {
			name = levelColor(lvl) + name + common.ColorReset
		}
		return slog.String(slog.LevelKey, name)
	}
}

// NewTerminalHandlerWithLevel returns a key=value handler for interactive use.
func NewTerminalHandlerWithLevel(w io.Writer, lvl slog.Level, useColor bool) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: replaceLevel(useColor),
	})
}

// JSONHandlerWithLevel returns a handler emitting one JSON object per record.
func JSONHandlerWithLevel(w io.Writer, lvl slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: replaceLevel(false),
	})
}
