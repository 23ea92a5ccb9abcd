package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"corsserve/config"
	"corsserve/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertFixedHeaders(t *testing.T, h http.Header) {
	t.Helper()
	for _, fh := range FixedHeaders {
		assert.Equal(t, fh.Value, h.Get(fh.Name), "header %s", fh.Name)
	}
}

func serveWithCORS(t *testing.T, inner http.HandlerFunc, method, target string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	CORSMiddleware(inner).ServeHTTP(rec, req)
	return rec.Result()
}

func TestCORSMiddlewareOverridesInnerHeaders(t *testing.T) {
	resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://example.com")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", "Thu, 01 Jan 2099 00:00:00 GMT")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assertFixedHeaders(t, resp.Header)
	assert.Len(t, resp.Header.Values("Cache-Control"), 1)
}

func TestCORSMiddlewareImplicitWriteHeader(t *testing.T) {
	resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "body without WriteHeader")
	}, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assertFixedHeaders(t, resp.Header)
}

func TestCORSMiddlewareEmptyHandler(t *testing.T) {
	resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {}, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assertFixedHeaders(t, resp.Header)
}

func TestCORSMiddlewareErrorResponses(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(code), code)
		}, http.MethodGet, "/missing")

		assert.Equal(t, code, resp.StatusCode)
		assertFixedHeaders(t, resp.Header)
	}
}

func TestCORSMiddlewareSurvivesHeaderStripping(t *testing.T) {
	// Same as the file server's error path: headers deleted right before
	// the status is written.
	resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Cache-Control")
		w.Header().Del("Expires")
		w.WriteHeader(http.StatusNotFound)
	}, http.MethodGet, "/gone")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assertFixedHeaders(t, resp.Header)
}

func TestCORSMiddlewarePreflightSkipsHandler(t *testing.T) {
	called := false
	resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, http.MethodOptions, "/does/not/exist")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assertFixedHeaders(t, resp.Header)
}

func TestCORSMiddlewareFlushCommitsHeaders(t *testing.T) {
	resp := serveWithCORS(t, func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
	}, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assertFixedHeaders(t, resp.Header)
}

// readerFromRecorder is a ResponseRecorder that, like net/http's own
// response, accepts io.ReaderFrom.
type readerFromRecorder struct {
	*httptest.ResponseRecorder
	readFromCalls int
}

func (r *readerFromRecorder) ReadFrom(src io.Reader) (int64, error) {
	r.readFromCalls++
	return io.Copy(r.ResponseRecorder, src)
}

func TestCORSMiddlewareForwardsReadFrom(t *testing.T) {
	rec := &readerFromRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rf, ok := w.(io.ReaderFrom)
		require.True(t, ok)
		n, err := rf.ReadFrom(strings.NewReader("file body"))
		require.NoError(t, err)
		assert.Equal(t, int64(9), n)
	}))

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.readFromCalls)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "file body", string(body))
	assertFixedHeaders(t, resp.Header)
}

func TestLoggingMiddlewareCountsReadFrom(t *testing.T) {
	var buf bytes.Buffer
	s := New(&config.Config{Host: config.LoopbackHost, Root: t.TempDir()},
		WithLogger(logger.New(&buf)), WithConsole(io.Discard))

	rec := &readerFromRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := s.LoggingMiddleware(CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.CopyN(w, strings.NewReader("0123456789"), 7)
	})))

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1, rec.readFromCalls)
	assert.Equal(t, "0123456", rec.Body.String())
	assert.Contains(t, buf.String(), "bytes=7")
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	s := New(&config.Config{Host: config.LoopbackHost, Root: t.TempDir()},
		WithLogger(logger.New(&buf)), WithConsole(io.Discard))

	tests := []struct {
		name      string
		code      int
		wantLevel string
		wantMsg   string
	}{
		{name: "ok", code: http.StatusOK, wantLevel: "level=info", wantMsg: `msg="Request served"`},
		{name: "not found", code: http.StatusNotFound, wantLevel: "level=info", wantMsg: `msg="Request served"`},
		{name: "server error", code: http.StatusInternalServerError, wantLevel: "level=error", wantMsg: `msg="Request failed"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			h := s.LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				io.WriteString(w, "hello")
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/some/path?q=1", nil))

			id := rec.Header().Get(RequestIDHeader)
			_, err := uuid.Parse(id)
			require.NoError(t, err)

			out := buf.String()
			assert.Contains(t, out, "request_id="+id)
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, tt.wantMsg)
			assert.Contains(t, out, "method=GET")
			assert.Contains(t, out, `uri="/some/path?q=1"`)
			assert.Contains(t, out, "bytes=5")
			assert.Contains(t, out, fmt.Sprintf("status=%d", tt.code))
		})
	}
}
