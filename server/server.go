package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/petal-labs/tooldispatch/tool"
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Registry   *tool.Registry
	Observer   tool.Observer
	CORSOrigin string
	Logger     *slog.Logger

	// MaxBody caps request bodies in bytes. Defaults to DefaultMaxBody.
	MaxBody int64

	// Events, when set, is mounted at GET /events.
	Events http.Handler
}

// Server is the dispatcher HTTP API.
type Server struct {
	registry   *tool.Registry
	observer   tool.Observer
	corsOrigin string
	logger     *slog.Logger
	maxBody    int64
	events     http.Handler
}

// DefaultMaxBody is the request body cap used when ServerConfig.MaxBody is unset.
const DefaultMaxBody = 100 << 10

// NewServer creates a new Server with the given configuration. A nil registry
// behaves as an empty one.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = tool.EmptyRegistry()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = tool.NoopObserver{}
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Server{
		registry:   registry,
		observer:   observer,
		corsOrigin: corsOrigin,
		logger:     logger,
		maxBody:    maxBody,
		events:     cfg.Events,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.maxBodyMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the dispatcher routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /tool", s.handleInvoke)
	if s.events != nil {
		mux.Handle("GET /events", s.events)
	}
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// maxBodyMiddleware caps request bodies. A body over the limit fails to decode
// and is treated like any other unparseable body.
func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware echoes the caller's X-Request-ID or assigns a new one,
// and makes it available to handlers through the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(tool.WithRequestID(r.Context(), id)))
	})
}

// --- JSON helpers ---

// writeJSON encodes v before touching the response so an unencodable value
// still yields a single well-formed error response.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
	return nil
}

// failureBody is the error envelope every non-200 dispatch response uses.
type failureBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, failureBody{OK: false, Error: message})
}
