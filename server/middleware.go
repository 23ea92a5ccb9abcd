package server

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Header is one name/value pair added to every response.
type Header struct {
	Name  string
	Value string
}

// FixedHeaders are applied to every response, whatever its status.
var FixedHeaders = []Header{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type"},
	{"Cache-Control", "no-store, no-cache, must-revalidate, max-age=0"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

// headerWriter applies FixedHeaders at the moment the status line is
// committed. Setting them before calling the inner handler is not enough:
// net/http drops Cache-Control from file-server error responses.
type headerWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (hw *headerWriter) applyFixedHeaders() {
	h := hw.ResponseWriter.Header()
	for _, fh := range FixedHeaders {
		h.Set(fh.Name, fh.Value)
	}
}

func (hw *headerWriter) WriteHeader(code int) {
	// 1xx responses are not final, the real status follows
	if code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols {
		hw.ResponseWriter.WriteHeader(code)
		return
	}
	if !hw.wroteHeader {
		hw.wroteHeader = true
		hw.applyFixedHeaders()
	}
	hw.ResponseWriter.WriteHeader(code)
}

func (hw *headerWriter) Write(b []byte) (int, error) {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	return hw.ResponseWriter.Write(b)
}

func (hw *headerWriter) Flush() {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ReadFrom keeps the sendfile path of http.FileServer available.
func (hw *headerWriter) ReadFrom(src io.Reader) (int64, error) {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	if rf, ok := hw.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(src)
	}
	return io.Copy(hw.ResponseWriter, src)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (hw *headerWriter) Unwrap() http.ResponseWriter {
	return hw.ResponseWriter
}

// CORSMiddleware adds the fixed CORS and no-cache headers to every response
// and answers preflight requests without reaching next.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hw := &headerWriter{ResponseWriter: w}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			hw.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(hw, r)

		// A handler that writes nothing still gets an implicit 200
		if !hw.wroteHeader {
			hw.WriteHeader(http.StatusOK)
		}
	})
}

// ServerHeaderMiddleware identifies the responder on every response.
func ServerHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", ServerName+"/"+Version)
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader && code >= 200 {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.wroteHeader = true
		f.Flush()
	}
}

func (rw *responseWriter) ReadFrom(src io.Reader) (n int64, err error) {
	rw.wroteHeader = true
	if rf, ok := rw.ResponseWriter.(io.ReaderFrom); ok {
		n, err = rf.ReadFrom(src)
	} else {
		n, err = io.Copy(rw.ResponseWriter, src)
	}
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestIDHeader carries the ID that LoggingMiddleware logs for a request.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware tags each request with an ID and logs one line per
// completed request.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		props := map[string]interface{}{
			"request_id":  requestID,
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"uri":         r.RequestURI,
			"status":      rw.statusCode,
			"bytes":       rw.bytes,
			"duration":    time.Since(start).String(),
		}

		if rw.statusCode >= http.StatusInternalServerError {
			s.log.Error("Request failed", props)
			return
		}
		s.log.Info("Request served", props)
	})
}
