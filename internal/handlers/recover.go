package handlers

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/guidopia/apiserver/internal/logging"
	"go.uber.org/zap"
)

// Recoverer converts panics into the stable error envelope. Panic
// values and stacks are redacted before logging; response detail is
// only included outside production.
func Recoverer(logger *zap.Logger, production bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				detail := logging.Redact(fmt.Sprint(rec))
				fields := []zap.Field{
					zap.String("panic", detail),
					zap.String("method", r.Method),
					zap.String("url", r.URL.Path),
					zap.String("ip", clientIP(r)),
				}
				if !production {
					fields = append(fields, zap.String("stack", logging.Redact(string(debug.Stack()))))
				}
				logger.Error("request panic", fields...)

				message := "Internal server error"
				if !production {
					message = detail
				}
				writeError(w, http.StatusInternalServerError, message)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
