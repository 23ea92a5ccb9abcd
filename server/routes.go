package server

import (
	"fmt"
	"net/http"
)

// setupRoutes registers the static file handler for every path.
// OPTIONS never gets here, CORSMiddleware answers it.
func (s *Server) setupRoutes() {
	files := http.FileServer(s.files)

	// POST is served exactly like GET, the request body is ignored
	s.router.PathPrefix("/").
		Handler(files).
		Methods(http.MethodGet, http.MethodHead, http.MethodPost)

	s.router.MethodNotAllowedHandler = http.HandlerFunc(handleUnsupportedMethod)
}

// handleUnsupportedMethod answers methods the file server does not implement.
func handleUnsupportedMethod(w http.ResponseWriter, r *http.Request) {
	http.Error(w, fmt.Sprintf("Unsupported method ('%s')", r.Method), http.StatusNotImplemented)
}
