// Package middleware provides HTTP middleware for the cache/query service.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cordal/queryflow/pkg/apierror"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// RequestLogger logs every request with a correlation ID, status, and
// duration, propagating an inbound X-Request-ID or generating one.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		logRequest(requestID, r, wrapped.statusCode, wrapped.bytesWritten, time.Since(start))
	})
}

// WithRequestID adds a request ID to ctx; useful for tests and background jobs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromCtx retrieves the request ID stored by RequestLogger, or "".
func RequestIDFromCtx(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func logRequest(requestID string, r *http.Request, statusCode, bytesWritten int, duration time.Duration) {
	entry := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"request_id":  requestID,
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
		"bytes":       bytesWritten,
		"remote_addr": r.RemoteAddr,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] failed to marshal log entry: %v", err)
		log.Printf("[%s] %s %s - %d (%dms)", requestID, r.Method, r.URL.Path, statusCode, duration.Milliseconds())
		return
	}
	switch {
	case statusCode >= 500:
		log.Printf("[ERROR] %s", data)
	case statusCode >= 400:
		log.Printf("[WARN] %s", data)
	default:
		log.Printf("[INFO] %s", data)
	}
}

// WriteError translates an apierror.Error (or any other error) into an HTTP
// response with the right status code, so every endpoint handles failures
// the same way instead of each re-deriving a status code from a Kind.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ae *apierror.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apierror.BadRequest:
			status = http.StatusBadRequest
		case apierror.NotFound:
			status = http.StatusNotFound
		case apierror.Unavailable:
			status = http.StatusServiceUnavailable
		case apierror.DeadlineExceeded:
			status = http.StatusGatewayTimeout
		case apierror.Internal:
			status = http.StatusInternalServerError
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
