// ABOUTME: HTTP API for the training hub: model registration and resolution
// ABOUTME: Registration sits behind bearer auth; reads are open like the registry UI

package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chestscan/modelhub/internal/auth"
	"github.com/chestscan/modelhub/internal/metrics"
	"github.com/chestscan/modelhub/internal/pipeline"
	"github.com/chestscan/modelhub/internal/registry"
)

// RegisterModelRequest is the JSON request body for POST /models/{name}/register.
type RegisterModelRequest struct {
	ModelFilePath  string   `json:"model_file_path"`
	ClassNames     []string `json:"class_names"`
	ExperimentName string   `json:"experiment_name"`
	MaxEvalCount   int      `json:"max_eval_count,omitempty"`
}

// ModelVersionResponse is the JSON shape of one registered version.
type ModelVersionResponse struct {
	Name         string             `json:"name"`
	Version      int                `json:"version"`
	Status       string             `json:"status"`
	ArtifactPath string             `json:"artifact_path,omitempty"`
	Architecture map[string]string  `json:"architecture,omitempty"`
	ClassNames   []string           `json:"class_names,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
	RunID        string             `json:"run_id,omitempty"`
	ExperimentID string             `json:"experiment_id,omitempty"`
}

// ListModelsResponse is the JSON response for GET /models.
type ListModelsResponse struct {
	Models []ModelVersionResponse `json:"models"`
}

// Server is the training hub HTTP API.
type Server struct {
	pipe     *pipeline.Pipeline
	resolver *registry.Resolver
	verifier auth.Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewServer builds the hub API. verifier guards the registration route; m may
// be nil to disable instrumentation.
func NewServer(pipe *pipeline.Pipeline, resolver *registry.Resolver, verifier auth.Verifier, m *metrics.Metrics) *Server {
	return &Server{
		pipe:     pipe,
		resolver: resolver,
		verifier: verifier,
		metrics:  m,
		logger:   slog.Default().With("component", "hub"),
	}
}

// Routes registers all hub endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.Handle("/models", s.instrument("models", http.HandlerFunc(s.handleListModels)))
	mux.Handle("/models/", s.instrument("model", http.HandlerFunc(s.handleModelRoutes)))
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return s.metrics.Instrument(name, h)
}

// handleModelRoutes dispatches /models/{name} and /models/{name}/register.
func (s *Server) handleModelRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/models/")
	if rest == "" {
		s.sendJSONError(w, http.StatusBadRequest, "model name is required")
		return
	}

	if name, ok := strings.CutSuffix(rest, "/register"); ok {
		if strings.Contains(name, "/") || name == "" {
			s.sendJSONError(w, http.StatusBadRequest, "invalid path")
			return
		}
		// Registration mutates the registry and requires a valid token.
		auth.Middleware(s.verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.handleRegisterModel(w, r, name)
		})).ServeHTTP(w, r)
		return
	}

	if strings.Contains(rest, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.handleGetModel(w, r, rest)
}

// handleRegisterModel handles POST /models/{name}/register.
func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req RegisterModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	subject := auth.SubjectFromContext(r.Context())
	v, err := s.pipe.Register(r.Context(), pipeline.RegisterRequest{
		ModelFilePath:  req.ModelFilePath,
		ModelName:      name,
		ClassNames:     req.ClassNames,
		ExperimentName: req.ExperimentName,
		MaxEvalCount:   req.MaxEvalCount,
	})
	if errors.Is(err, pipeline.ErrInvalidArgument) {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("registration failed", "model", name, "subject", subject, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "model registration failed")
		return
	}

	s.logger.Info("model registered", "model", name, "version", v.Version, "subject", subject)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toVersionResponse(v))
}

// handleGetModel handles GET /models/{name}: latest version with its
// resolved artifact path.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	v, err := s.resolver.Latest(r.Context(), name)
	if errors.Is(err, registry.ErrModelNotFound) || errors.Is(err, registry.ErrModelNotFoundInArtifacts) {
		s.sendJSONError(w, http.StatusNotFound, "model not found")
		return
	}
	if err != nil {
		s.logger.Error("model lookup failed", "model", name, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toVersionResponse(v))
}

// handleListModels handles GET /models. Listing is best-effort: models whose
// latest version cannot be resolved are skipped, never fail the whole call.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	versions, err := s.resolver.ListAll(r.Context())
	if err != nil {
		s.logger.Error("model listing failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListModelsResponse{Models: make([]ModelVersionResponse, len(versions))}
	for i, v := range versions {
		resp.Models[i] = toVersionResponse(v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"ping": "pong!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func toVersionResponse(v *registry.ModelVersion) ModelVersionResponse {
	resp := ModelVersionResponse{
		Name:         v.Name,
		Version:      v.Version,
		Status:       v.Status,
		ArtifactPath: v.ArtifactPath,
		Architecture: v.Architecture,
		ClassNames:   v.ClassNames,
		Metrics:      v.Metrics,
		RunID:        v.RunID,
		ExperimentID: v.ExperimentID,
	}
	if !v.CreatedAt.IsZero() {
		resp.CreatedAt = v.CreatedAt.Format(time.RFC3339)
	}
	if !v.UpdatedAt.IsZero() {
		resp.UpdatedAt = v.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
