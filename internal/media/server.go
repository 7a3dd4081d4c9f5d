package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/comfy-mcp/comfy-mcp/pkg/config"
)

const maxUploadSize = 512 << 20

// Store is what the file API needs from the storage backend.
type Store interface {
	Uploader
	Info(id string) (FileInfo, error)
	Exists(id string) bool
	Open(id string) (io.ReadSeekCloser, FileInfo, error)
}

// Server exposes stored files over HTTP.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      Store
	logger     *slog.Logger
}

func NewServer(cfg config.MediaConfig, store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: store, logger: logger.With("component", "media_http")}
	s.router = s.setupRouter(cfg.CORS)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter(corsCfg config.CORSConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if corsCfg.Enabled {
		origins := corsCfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:         300,
		}).Handler)
	}

	r.Route("/files", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/info", s.handleInfo)
		r.Get("/{id}/exists", s.handleExists)
	})
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"detail": msg})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer func() { _ = file.Close() }()

	filename := hdr.Filename
	if filename == "" {
		filename = "unknown"
	}
	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentTypeFor(filename)
	}

	info, err := s.store.Upload(r.Context(), file, filename, contentType)
	if err != nil {
		s.logger.Error("Failed to upload file", "filename", filename, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to upload file: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	f, info, err := s.store.Open(chi.URLParam(r, "id"))
	if err != nil {
		s.notFoundOrError(w, err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", info.Filename))
	http.ServeContent(w, r, info.Filename, time.Time{}, f)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(chi.URLParam(r, "id"))
	if err != nil {
		s.notFoundOrError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"exists": s.store.Exists(chi.URLParam(r, "id"))})
}

func (s *Server) notFoundOrError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrFileNotFound), errors.Is(err, ErrInvalidID):
		respondError(w, http.StatusNotFound, "File not found")
	default:
		s.logger.Error("Failed to read file", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Start binds synchronously so address errors surface at startup, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("media server listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("Media file server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Media file server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
