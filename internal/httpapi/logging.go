package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// requestLogger logs one structured JSON line per request: request ID
// (propagated from X-Request-ID or generated), method, path, status,
// duration, and response size.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		logLine(requestID, r, wrapped.statusCode, wrapped.bytesWritten, time.Since(start))
	})
}

func logLine(requestID string, r *http.Request, status, bytes int, dur time.Duration) {
	entry := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"request_id":  requestID,
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      status,
		"duration_ms": dur.Milliseconds(),
		"bytes":       bytes,
		"remote_addr": r.RemoteAddr,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[%s] %s %s - %d (%dms)", requestID, r.Method, r.URL.Path, status, dur.Milliseconds())
		return
	}

	switch {
	case status >= 500:
		log.Printf("[ERROR] %s", data)
	case status >= 400:
		log.Printf("[WARN] %s", data)
	default:
		log.Printf("[INFO] %s", data)
	}
}

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
