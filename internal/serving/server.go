// ABOUTME: Serving backend HTTP API: login proxy, model browsing and prediction
// ABOUTME: Resolves models through the training hub and loads bundles from shared storage

package serving

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chestscan/modelhub/internal/auth"
	"github.com/chestscan/modelhub/internal/hub"
	"github.com/chestscan/modelhub/internal/metrics"
	"github.com/chestscan/modelhub/internal/model"
	"github.com/chestscan/modelhub/internal/registry"
)

// maxUploadBytes caps uploaded prediction images.
const maxUploadBytes = 32 << 20

// ModelSource resolves models through the training hub.
type ModelSource interface {
	Latest(ctx context.Context, name string) (*hub.ModelVersionResponse, error)
	List(ctx context.Context) ([]hub.ModelVersionResponse, error)
}

// TokenIssuer obtains a token for forwarded credentials.
type TokenIssuer interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// LoginRequest is the JSON request body for POST /api/models/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for POST /api/models/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// PredictionResponse is the JSON response for the predict endpoint.
type PredictionResponse struct {
	Model   string             `json:"model"`
	Version int                `json:"version"`
	Class   string             `json:"class"`
	Scores  map[string]float64 `json:"scores"`
}

// Server is the serving backend HTTP API.
type Server struct {
	models   ModelSource
	issuer   TokenIssuer
	verifier auth.Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewServer builds the serving API. m may be nil to disable instrumentation.
func NewServer(models ModelSource, issuer TokenIssuer, verifier auth.Verifier, m *metrics.Metrics) *Server {
	return &Server{
		models:   models,
		issuer:   issuer,
		verifier: verifier,
		metrics:  m,
		logger:   slog.Default().With("component", "serving"),
	}
}

// Routes registers all serving endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.Handle("/api/models/login", s.instrument("login", http.HandlerFunc(s.handleLogin)))
	mux.Handle("/api/models", s.instrument("models", http.HandlerFunc(s.handleListModels)))
	mux.Handle("/api/models/", s.instrument("model", http.HandlerFunc(s.handleModelRoutes)))
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

// handleLogin proxies credentials to the identity service and returns the
// issued token, so browser clients only ever talk to this backend.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	tok, err := s.issuer.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrFailedAuthentication) {
		s.sendJSONError(w, http.StatusUnauthorized, "wrong credentials or unknown user")
		return
	}
	if errors.Is(err, auth.ErrServiceUnavailable) {
		s.sendJSONError(w, http.StatusServiceUnavailable, "auth service unavailable")
		return
	}
	if err != nil {
		s.logger.Error("login proxy failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{AccessToken: tok, TokenType: "bearer"})
}

// handleModelRoutes dispatches /api/models/{name} and /api/models/{name}/predict.
func (s *Server) handleModelRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/models/")
	if rest == "" {
		s.sendJSONError(w, http.StatusBadRequest, "model name is required")
		return
	}

	if name, ok := strings.CutSuffix(rest, "/predict"); ok {
		if strings.Contains(name, "/") || name == "" {
			s.sendJSONError(w, http.StatusBadRequest, "invalid path")
			return
		}
		auth.Middleware(s.verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.handlePredict(w, r, name)
		})).ServeHTTP(w, r)
		return
	}

	if strings.Contains(rest, "/") {
		s.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.handleGetModel(w, r, rest)
}

// handleListModels handles GET /api/models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	models, err := s.models.List(r.Context())
	if errors.Is(err, hub.ErrHubUnavailable) {
		s.sendJSONError(w, http.StatusServiceUnavailable, "training hub unavailable")
		return
	}
	if err != nil {
		s.logger.Error("model listing failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hub.ListModelsResponse{Models: models})
}

// handleGetModel handles GET /api/models/{name}.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	v := s.resolve(r.Context(), w, name)
	if v == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handlePredict handles POST /api/models/{name}/predict: decodes the uploaded
// image, loads the latest registered bundle and classifies.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	img, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}

	v := s.resolve(r.Context(), w, name)
	if v == nil {
		return
	}

	bundle, err := model.Load(v.ArtifactPath)
	if err != nil {
		s.logger.Error("bundle load failed", "model", name, "path", v.ArtifactPath, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "could not load model")
		return
	}

	pred, err := bundle.Predict(img)
	if errors.Is(err, model.ErrNoClassifier) {
		s.sendJSONError(w, http.StatusInternalServerError, "model cannot predict")
		return
	}
	if err != nil {
		s.logger.Error("prediction failed", "model", name, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PredictionResponse{
		Model:   v.Name,
		Version: v.Version,
		Class:   pred.Class,
		Scores:  pred.Scores,
	})
}

// decodeUpload reads the multipart "file" part and decodes it as an image.
// Writes the error response itself on failure.
func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "expected multipart form upload")
		return nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "file field is required")
		return nil, false
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "file is not a decodable image")
		return nil, false
	}
	return img, true
}

// resolve fetches the latest version via the hub, writing the error response
// itself and returning nil when the lookup fails.
func (s *Server) resolve(ctx context.Context, w http.ResponseWriter, name string) *hub.ModelVersionResponse {
	v, err := s.models.Latest(ctx, name)
	if errors.Is(err, registry.ErrModelNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "model not found")
		return nil
	}
	if errors.Is(err, hub.ErrHubUnavailable) {
		s.sendJSONError(w, http.StatusServiceUnavailable, "training hub unavailable")
		return nil
	}
	if err != nil {
		s.logger.Error("model lookup failed", "model", name, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	return v
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
