package middleware

import (
	"net/http"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/metrics"
)

const panicMiddlewareMethodName = "PanicMiddleware"

// PanicRecovery is a middleware that recovers from panics, logs the error,
// sends it to an error tracker, records a metric, and returns a 500 Internal Server Error.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rcv := recover(); rcv != nil {
				if rcv == http.ErrAbortHandler {
					panic(rcv)
				}

				metrics.GetProvider().RecordPanic(panicMiddlewareMethodName)

				err := logger.HandlePanic(r.Context(), panicMiddlewareMethodName, rcv)

				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
		}()
		next.ServeHTTP(w, r)
	})
}
