package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

// SetupLogging switches between console and JSON output and applies the level.
func SetupLogging(production bool, level string) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if production {
		out = os.Stderr
	}
	logger = zerolog.New(out).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	} else if level != "" {
		LogWarn("Unknown LOG_LEVEL %q, keeping %s", level, zerolog.GlobalLevel())
	}
}

// SetLogOutput redirects logging, mostly for tests.
func SetLogOutput(w io.Writer) {
	logger = zerolog.New(w).With().Timestamp().Logger()
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		LogWarn("Error checking directory existence: %v", err)
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func FormatUptime(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour%s, %d minute%s, %d second%s",
			hours, Plural(hours),
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s, %d second%s",
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	default:
		return fmt.Sprintf("%d second%s", seconds, Plural(seconds))
	}
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func GetEnvString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		LogWarn("Invalid duration for %s: %v, using default %v", key, err, fallback)
		return fallback
	}
	return d
}

func GetEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		LogWarn("Invalid int for %s: %v, using default %d", key, err, fallback)
		return fallback
	}
	return i
}

func GetEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		LogWarn("Invalid bool for %s: %v, using default %v", key, err, fallback)
		return fallback
	}
	return b
}

// GetEnvList splits a comma-separated variable, dropping blanks.
func GetEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	items := SplitList(val)
	if len(items) == 0 {
		return fallback
	}
	return items
}

// SplitList splits on commas and trims each item.
func SplitList(val string) []string {
	parts := lo.Map(strings.Split(val, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(constants.RequestIDKey).(string)
	return reqID
}

func LogInfo(format string, v ...any) {
	logger.Info().Msgf(format, v...)
}

func LogWarn(format string, v ...any) {
	logger.Warn().Msgf(format, v...)
}

func LogError(format string, v ...any) {
	logger.Error().Msgf(format, v...)
}

func LogFatal(format string, v ...any) {
	logger.Fatal().Msgf(format, v...)
}

// LogInfoCtx tags the entry with the request ID carried by ctx, if any.
func LogInfoCtx(ctx context.Context, format string, v ...any) {
	withRequest(logger.Info(), ctx).Msgf(format, v...)
}

func LogWarnCtx(ctx context.Context, format string, v ...any) {
	withRequest(logger.Warn(), ctx).Msgf(format, v...)
}

func withRequest(e *zerolog.Event, ctx context.Context) *zerolog.Event {
	if reqID := RequestID(ctx); reqID != "" {
		return e.Str("request_id", reqID)
	}
	return e
}
