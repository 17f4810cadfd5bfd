package logger

import (
	"log/slog"
	"os"
)

// New returns a structured stdout logger shared by handlers, services, and
// the expiry sweeper.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
