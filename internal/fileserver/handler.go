// Package fileserver serves a directory over HTTP with development-friendly
// CORS and cache headers.
package fileserver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

const indexPage = "/index.html"

// Headers are written on every response, whatever its status.
var Headers = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Cache-Control":                "no-cache, no-store, must-revalidate",
}

// Handler serves files from Dir.
type Handler struct {
	Dir    string
	logger *slog.Logger
	files  http.Handler
}

// New returns a handler serving files from dir. A nil logger disables request logging.
func New(dir string, logger *slog.Logger) *Handler {
	return &Handler{
		Dir:    dir,
		logger: logger,
		files:  http.FileServer(http.Dir(dir)),
	}
}

// serveIndex serves an explicit request for index.html directly. http.FileServer
// would answer it with a redirect to the directory, which service workers
// refuse to use from their cache. It reports false when the file server
// should handle the request instead.
func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) bool {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	name := path.Clean(upath)
	if !strings.HasSuffix(name, indexPage) {
		return false
	}

	f, err := http.Dir(h.Dir).Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "404 page not found", http.StatusNotFound)
		} else if errors.Is(err, fs.ErrPermission) {
			http.Error(w, "403 Forbidden", http.StatusForbidden)
		} else {
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		}
		return true
	}
	defer f.Close()

	d, err := f.Stat()
	if err != nil {
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return true
	}
	if d.IsDir() {
		return false
	}

	http.ServeContent(w, r, d.Name(), d.ModTime(), f)
	return true
}

// ServeHTTP serves the requested file and logs the result.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &responseWriter{ResponseWriter: w, status: http.StatusOK}

	if !h.serveIndex(rec, r) {
		h.files.ServeHTTP(rec, r)
	}

	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}

	if h.logger != nil {
		h.logger.Info(fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), r.Proto),
			"status", rec.status,
			"bytes", rec.written,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	}
}

// responseWriter injects Headers right before the header block is flushed.
// http.FileServer clears Cache-Control on its error path, so setting them
// ahead of the call is not enough.
type responseWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code

	header := w.ResponseWriter.Header()
	for k, v := range Headers {
		header.Set(k, v)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// ReadFrom keeps the underlying writer's sendfile path available to io.Copy.
func (w *responseWriter) ReadFrom(src io.Reader) (int64, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := io.Copy(w.ResponseWriter, src)
	w.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
