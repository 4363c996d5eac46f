// Package server serves a mirror tree as a read-only simple repository.
//
// Project pages are available as PEP 691 JSON and PEP 503 HTML, chosen from
// the request's Accept header. File hashes come from the ".hash" sidecars
// and core metadata (PEP 658) from the ".metadata" sidecars written by the
// mirror engine; sidecars themselves are served but never listed.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "0.0.0.0:8080"

// Server serves one index directory.
type Server struct {
	dir    string
	logger *log.Logger
	router chi.Router
}

// New returns a server for dir, which must be an existing directory.
func New(dir string, logger *log.Logger) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "index directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "index path %s is not a directory", dir)
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{dir: dir, logger: logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.index)
	r.Get("/{project}", s.projectNoSlash)
	r.Get("/{project}/", s.project)
	r.Get("/{project}/{file}", s.file)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		notFound(w, "Page not found")
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("serving index", "dir", s.dir, "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	ct, ok := negotiate(w, r)
	if !ok {
		return
	}
	page, err := listProjects(s.dir)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.render(w, ct, page, indexTmpl)
}

func (s *Server) projectNoSlash(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/"+requirement.Canonicalize(chi.URLParam(r, "project"))+"/", http.StatusMovedPermanently)
}

func (s *Server) project(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "project")
	if canonical := requirement.Canonicalize(name); canonical != name {
		http.Redirect(w, r, "/"+canonical+"/", http.StatusMovedPermanently)
		return
	}
	if errors.ValidatePythonPackageName(name) != nil {
		notFound(w, "No such project "+name)
		return
	}
	ct, ok := negotiate(w, r)
	if !ok {
		return
	}
	page, err := readProject(s.dir, name)
	if stderrors.Is(err, fs.ErrNotExist) {
		notFound(w, "No such project "+name)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.render(w, ct, page, projectTmpl)
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	name, filename := chi.URLParam(r, "project"), chi.URLParam(r, "file")
	if canonical := requirement.Canonicalize(name); canonical != name {
		http.Redirect(w, r, "/"+canonical+"/"+filename, http.StatusMovedPermanently)
		return
	}
	if errors.ValidatePythonPackageName(name) != nil || errors.ValidateFilename(filename) != nil {
		notFound(w, "No such file "+filename)
		return
	}

	f, err := os.Open(filepath.Join(s.dir, name, filename))
	if err != nil {
		notFound(w, "No such file "+filename)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		notFound(w, "No such file "+filename)
		return
	}

	w.Header().Set("Content-Type", fileContentType(filename))
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

func fileContentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".whl"), strings.HasSuffix(filename, ".zip"):
		return "application/octet-stream"
	case strings.HasSuffix(filename, ".tar.gz"):
		return "application/x-tar"
	}
	return "text/plain"
}

// =============================================================================
// Helpers
// =============================================================================

func negotiate(w http.ResponseWriter, r *http.Request) (string, bool) {
	ct, ok := Negotiate(r.Header.Get("Accept"))
	if !ok {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte("The server cannot generate a response in any of the requested MIME types"))
	}
	return ct, ok
}

func (s *Server) render(w http.ResponseWriter, ct string, page any, tmpl *template.Template) {
	w.Header().Set("Vary", "Accept")
	if isJSON(ct) {
		w.Header().Set("Content-Type", TypeJSONv1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(page)
		return
	}
	w.Header().Set("Content-Type", ct+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := tmpl.Execute(w, page); err != nil {
		s.logger.Error("render page", "err", err)
	}
}

func notFound(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(msg))
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "err", err)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte("internal server error"))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
