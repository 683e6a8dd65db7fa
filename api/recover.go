package api

import (
	"net/http"
	"runtime"
)

// stackTraceBufferSize is the buffer size for stack trace collection.
const stackTraceBufferSize = 4096

// recoverMiddleware converts a panic in a handler into the uniform
// error shape. A failure in one request must never take down the
// process or affect another in-flight request.
func (a *API) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, stackTraceBufferSize)
				n := runtime.Stack(buf, false)
				a.logger.Errorw("Request handler panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
					"stack", string(buf[:n]))
				respondJSON(w, errorResponse{Error: "Internal server error."}, http.StatusInternalServerError, a.logger)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
