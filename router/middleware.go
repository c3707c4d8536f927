package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Middleware is a function that takes an http.Handler and returns an http.Handler
type Middleware func(next http.Handler) http.Handler

// chainMiddleware chains middleware handlers, first outermost.
func chainMiddleware(handler http.Handler, middleware ...Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLogMiddleware tags each request with an id and logs its outcome.
func accessLogMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requestID := uuid.New().String()
			recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
			started := time.Now()
			next.ServeHTTP(recorder, request)
			logger.Info("http request",
				"requestId", requestID,
				"method", request.Method,
				"path", request.URL.Path,
				"status", recorder.status,
				"duration", time.Since(started))
		})
	}
}
