package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the global logger instance
var Log *slog.Logger

// Init initializes the global logger based on environment
// Development: Text format with Debug level
// Production: JSON format with Info level
// Errors are also forwarded to Sentry when a DSN is configured
func Init(isDev bool, sentryDSN string) {
	Log = New(os.Stdout, isDev, sentryDSN)
	slog.SetDefault(Log)
}

// New builds a logger writing to w without touching the slog default.
func New(w io.Writer, isDev bool, sentryDSN string) *slog.Logger {
	var handlers []slog.Handler

	if isDev {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if sentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			Environment:      environment(isDev),
			AttachStacktrace: true,
			TracesSampleRate: 0.2,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{
				Level: slog.LevelError,
			}.NewSentryHandler())
		} else {
			slog.New(handlers[0]).Warn("sentry init failed, continuing without it", "error", err)
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// Flush waits for buffered Sentry events before the process exits.
func Flush() {
	sentry.Flush(2 * time.Second)
}

func environment(isDev bool) string {
	if isDev {
		return "development"
	}
	return "production"
}
