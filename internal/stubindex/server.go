package stubindex

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/middleware"
)

// maxBodyBytes bounds one request body; 1000 large documents fit comfortably.
const maxBodyBytes = 64 << 20

// ServerConfig configures the HTTP face of the stub.
type ServerConfig struct {
	APIKey         string
	MaxBatchSize   int
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
}

// Server routes the index REST surface to registered stores.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	mu     sync.RWMutex
	stores map[string]*Store
	logger *slog.Logger
}

func NewServer(cfg ServerConfig, stores ...*Store) *Server {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = indexing.DefaultMaxBatchSize
	}
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		stores: make(map[string]*Store),
		logger: slog.Default().With("component", "stub-server"),
	}
	for _, st := range stores {
		s.stores[st.Name()] = st
	}
	s.routes()
	return s
}

// Register adds or replaces the store serving its index name.
func (s *Server) Register(st *Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[st.Name()] = st
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	if s.cfg.Metrics != nil {
		s.router.Use(middleware.Metrics(s.cfg.Metrics))
	}
	s.router.Use(middleware.APIKey(s.cfg.APIKey))
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	docs := s.router.PathPrefix("/indexes/{index}/docs").Subrouter()
	docs.HandleFunc("/index", s.handleIndex).Methods(http.MethodPost)
	docs.HandleFunc("/$count", s.handleCount).Methods(http.MethodGet)
	docs.HandleFunc("/{key}", s.handleLookup).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Warn("no route", "method", r.Method, "path", r.URL.Path)
		middleware.WriteError(w, http.StatusNotFound, "The requested resource does not exist.")
	})
}

func (s *Server) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	name := mux.Vars(r)["index"]
	s.mu.RLock()
	st, ok := s.stores[name]
	s.mu.RUnlock()
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "The index '"+name+"' was not found.")
		return nil, false
	}
	if r.URL.Query().Get("api-version") == "" {
		middleware.WriteError(w, http.StatusBadRequest, "The api-version query parameter is required.")
		return nil, false
	}
	return st, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	actions, err := s.readBatch(w, r)
	if err != nil {
		s.logger.Warn("invalid index request", "index", st.Name(), "error", err)
		writeError(w, err)
		return
	}

	status, results, err := st.Apply(actions)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			middleware.WriteError(w, reqErr.StatusCode, reqErr.Message)
			return
		}
		s.logger.Error("apply failed", "index", st.Name(), "error", err)
		writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "An internal error occurred."))
		return
	}
	s.logger.Info("batch indexed", "index", st.Name(), "actions", len(actions), "status_code", status)
	s.writeJSON(w, status, indexing.ResultsBody{Value: results})
}

func (s *Server) readBatch(w http.ResponseWriter, r *http.Request) ([]indexing.WireAction, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrBatchTooLarge, http.StatusRequestEntityTooLarge, "The request is too large.")
	}
	actions, err := indexing.DecodeWireBatch(body)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "The request is invalid. %v", err)
	}
	if len(actions) == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyBatch, http.StatusBadRequest, "The request is invalid. The batch contains no actions.")
	}
	if len(actions) > s.cfg.MaxBatchSize {
		return nil, apperrors.Newf(apperrors.ErrBatchTooLarge, http.StatusRequestEntityTooLarge,
			"The request is invalid. A batch may contain at most %d actions.", s.cfg.MaxBatchSize)
	}
	return actions, nil
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	doc, found := st.Get(mux.Vars(r)["key"])
	if !found {
		writeError(w, apperrors.New(apperrors.ErrDocumentNotFound, http.StatusNotFound, MsgDocumentNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, strconv.Itoa(st.Count()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError answers with the status mapped from err and, for an AppError, its
// client-facing message.
func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	middleware.WriteError(w, apperrors.HTTPStatusCode(err), msg)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
