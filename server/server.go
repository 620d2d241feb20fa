// Package server is the HTTP transport adapter: it turns requests into
// pipeline trigger events and exposes run results. No pipeline logic
// lives here.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"docrag/rag/errs"
	"docrag/rag/jobs"
	"docrag/rag/pipeline"
	"docrag/rag/store"
)

const maxUploadBytes = 64 << 20

// Server exposes the pipelines and document management over HTTP.
type Server struct {
	dispatcher *pipeline.Dispatcher
	retrieval  *pipeline.Retrieval
	runner     *jobs.Runner
	vectors    store.VectorStore
	logger     *zap.Logger
}

// New creates the HTTP server wiring.
func New(dispatcher *pipeline.Dispatcher, retrieval *pipeline.Retrieval, runner *jobs.Runner, vectors store.VectorStore, logger *zap.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		retrieval:  retrieval,
		runner:     runner,
		vectors:    vectors,
		logger:     logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/chat", s.handleChat)
		r.Get("/runs/{id}", s.handleRun)
		r.Delete("/documents/{source}", s.handleDeleteDocument)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload stages the uploaded document in a temp file and
// dispatches an asynchronous ingestion run for it. The source id is
// the uploaded filename.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "upload_*"+filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	tmp.Close()

	run, err := s.dispatcher.DispatchIngest(r.Context(), pipeline.IngestRequest{
		SourceID:    header.Filename,
		DocumentRef: tmp.Name(),
		RemoveAfter: true,
	})
	if err != nil {
		os.Remove(tmp.Name())
		writeError(w, http.StatusServiceUnavailable, "failed to schedule ingestion")
		return
	}

	s.logger.Info("upload accepted",
		zap.String("filename", header.Filename),
		zap.String("run", run.ID),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":  "File received. Processing started.",
		"filename": header.Filename,
		"run_id":   run.ID,
	})
}

// handleChat runs the retrieval pipeline synchronously and returns the
// answer.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req pipeline.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run := jobs.NewRun(jobs.KindQuery)
	if err := s.runner.Start(r.Context(), run); err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed to start run")
		return
	}

	answer, err := s.retrieval.Run(r.Context(), run, req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleRun reports a run's state, for polling asynchronous ingestion.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Checkpointer().LoadRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleDeleteDocument removes every stored point of one source.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	source, err := url.PathUnescape(chi.URLParam(r, "source"))
	if err != nil || source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	if err := s.vectors.DeleteBySource(r.Context(), source); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	s.logger.Info("document deleted", zap.String("source", source))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Document deleted.",
		"source":  source,
	})
}

// handleStats reports the size of the vector index.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.vectors.Count(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"points": count})
}

// statusFor maps pipeline error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
