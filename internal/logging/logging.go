package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Init installs the default process logger. Level defaults to info;
// ARTADVISOR_DEBUG=1 switches to debug.
func Init() {
	level := slog.LevelInfo
	if os.Getenv("ARTADVISOR_DEBUG") == "1" {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})

	slog.SetDefault(slog.New(handler))
}
