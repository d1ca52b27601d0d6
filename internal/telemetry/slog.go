package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logLevel backs every handler installed by SetupLogger so the level can be
// changed at runtime by SetLogLevel (config hot-reload).
var logLevel = new(slog.LevelVar)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" (case-insensitive)
// to a slog.Level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the global slog default logger.
//
// format: "json" → JSONHandler (machine readable; recommended for production),
// anything else → TextHandler.
//
// All slog.Info/Warn/Error calls elsewhere use the installed logger without
// carrying a *slog.Logger around.
func SetupLogger(format, level string) {
	setupLogger(os.Stdout, format, level)
}

func setupLogger(w io.Writer, format, level string) {
	lvl := ParseLevel(level)
	logLevel.Set(lvl)

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

// SetLogLevel changes the level of the logger installed by SetupLogger.
// It reports whether the level actually changed.
func SetLogLevel(level string) bool {
	lvl := ParseLevel(level)
	if logLevel.Level() == lvl {
		return false
	}
	logLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
	return true
}

// LogLevel returns the current level of the installed logger
func LogLevel() slog.Level {
	return logLevel.Level()
}
