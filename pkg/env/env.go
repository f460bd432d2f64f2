package env

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Mode string

const (
	Test  Mode = "test"
	Local Mode = "local"
	Dev   Mode = "dev"
	Prod  Mode = "prod"
)

var currentMode = Test

func SetMode(mode Mode) {
	if !mode.Validate() {
		panic("invalid mode: " + mode.String())
	}
	currentMode = mode
}

func Current() Mode {
	return currentMode
}

func (e Mode) String() string {
	return string(e)
}

func (e Mode) Validate() bool {
	switch e {
	case Local, Test, Dev, Prod:
		return true
	default:
		return false
	}
}

func (e Mode) SlogLevel() slog.Level {
	switch e {
	case Test, Local, Dev:
		return slog.LevelDebug
	case Prod:
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// Diagnostics reports whether infrastructure failures may be shown to API callers.
func (e Mode) Diagnostics() bool {
	return e != Prod
}

func String(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func Int(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return b
}

func Duration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return d
}
