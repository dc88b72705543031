package internal

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// InitSlog sets the default slog logger to a JSON logger on standard error at
// the given level. Unknown levels fall back to INFO.
func InitSlog(level string) {
	var programLevel slog.Level
	if err := (&programLevel).UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v, using info\n", level, err)
		programLevel = slog.LevelInfo
	}

	leveler := &slog.LevelVar{}
	leveler.Set(programLevel)

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     leveler,
	})
	slog.SetDefault(slog.New(h))
}

// GetRequestLogger returns a logger annotated with the request ID and the
// client-identifying headers of r.
func GetRequestLogger(r *http.Request) *slog.Logger {
	return slog.With(
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"user_agent", r.UserAgent(),
		"origin", r.Header.Get("Origin"),
		"x-forwarded-for", r.Header.Get("X-Forwarded-For"),
		"remote_addr", r.RemoteAddr,
	)
}

// ErrorLogFilter drops "context canceled" lines the http server logs when a
// client goes away mid-request.
type ErrorLogFilter struct {
	Unwrap *log.Logger
}

func (elf *ErrorLogFilter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), "context canceled") {
		return len(p), nil
	}

	if elf.Unwrap == nil {
		return len(p), nil
	}

	return elf.Unwrap.Writer().Write(p)
}

// GetFilteredHTTPLogger returns a standard library logger suitable for
// http.Server.ErrorLog.
func GetFilteredHTTPLogger() *log.Logger {
	stdErrLogger := log.New(os.Stderr, "", log.LstdFlags)
	return log.New(&ErrorLogFilter{Unwrap: stdErrLogger}, "", 0)
}
