// Package logging sets up slog for the runtime. Everything logs through
// the process-wide default so library code never carries a logger of its
// own; components tag their records instead.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process-wide slog handler. format is "json" or "text"
// (anything else falls back to text); output goes to os.Stderr unless a
// writer is supplied.
func Init(level slog.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// New returns a logger tagged with the component name.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// ForRun returns a component logger scoped to one execution: every record
// carries the user and run ids so concurrent runs can be teased apart.
func ForRun(component, userID, runID string) *slog.Logger {
	return New(component).With(
		slog.String("user", userID),
		slog.String("run", runID),
	)
}
