package logger

import (
	"context"
	"encoding/json"
	"io"
	stdLog "log"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Handler renders records as a timestamp, a colored level tag, the message
// and an indented JSON blob of the attributes. It embeds a JSON handler so
// Enabled and WithGroup keep their standard semantics.
type Handler struct {
	slog.Handler
	l     *stdLog.Logger
	attrs []slog.Attr
}

// NewLogger builds the service-wide logger. The level comes from the
// LOG_LEVEL environment variable (debug|info|warn|error), defaulting to debug.
func NewLogger() *slog.Logger {
	return New(os.Stdout, levelFromEnv())
}

func New(out io.Writer, level slog.Level) *slog.Logger {
	h := &Handler{
		Handler: slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}),
		l:       stdLog.New(out, "", 0),
	}
	return slog.New(h)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		Handler: h.Handler.WithAttrs(attrs),
		l:       h.l,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]interface{}, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	var b []byte
	if len(fields) > 0 {
		var err error
		b, err = json.MarshalIndent(fields, "", "	")
		if err != nil {
			return err
		}
	}

	h.l.Println(
		r.Time.Format("[15:04:05.000]"),
		level,
		color.BlueString(r.Message),
		color.WhiteString(string(b)),
	)

	return nil
}
