package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/facegate/internal/logging"
)

// quietPaths are polled by supervisors and scrapers and log at debug on success.
var quietPaths = map[string]bool{
	"/api/health": true,
	"/metrics":    true,
}

// HTTPLoggingMiddleware logs HTTP requests with a level picked from the status code.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path

	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		logAttrs = append(logAttrs, slog.String("query", redactAuth(query)))
	}
	if userAgent := ctx.Header("User-Agent"); userAgent != "" {
		logAttrs = append(logAttrs, slog.String("user_agent", userAgent))
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	logger.LogAttrs(ctx.Context(), requestLevel(method, path, status), "HTTP request completed", logAttrs...)
}

func requestLevel(method, path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case method == http.MethodOptions, quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// redactAuth hides the credentials EventSource clients pass in ?auth=.
func redactAuth(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil || !values.Has("auth") {
		return rawQuery
	}
	values.Set("auth", "REDACTED")
	return values.Encode()
}
