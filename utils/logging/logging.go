package logging

import (
	"io"
	"log/slog"
	"strings"
)

// VictoriaLogs has fixed field names for time (_time) and message (_msg).
func convertKeysToVictoriaLogs(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

// NewHandler returns a json handler using the VictoriaLogs keys when format is
// "json", and a text handler otherwise.
func NewHandler(w io.Writer, format string) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, GetVictoriaLogsOptions(false))
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
}
