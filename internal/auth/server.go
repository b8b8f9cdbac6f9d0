// ABOUTME: HTTP server for the auth service: token issue and verification routes
// ABOUTME: Defines the wire protocol the remote client and other services consume

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chestscan/modelhub/internal/metrics"
)

// Server exposes the auth service over HTTP.
type Server struct {
	svc     *Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewServer wraps svc with the HTTP surface. m may be nil to disable
// instrumentation.
func NewServer(svc *Service, m *metrics.Metrics) *Server {
	return &Server{
		svc:     svc,
		metrics: m,
		logger:  slog.Default().With("component", "authd"),
	}
}

// Routes registers all auth endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.Handle("/token", s.instrument("token", http.HandlerFunc(s.handleToken)))
	mux.Handle("/verify-token", s.instrument("verify_token", http.HandlerFunc(s.handleVerifyToken)))
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

// handleToken handles POST /token: credentials in, bearer token out.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	tok, err := s.svc.Login(req.Username, req.Password)
	if errors.Is(err, ErrFailedAuthentication) {
		s.sendJSONError(w, http.StatusUnauthorized, "wrong credentials or unknown user")
		return
	}
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}{AccessToken: tok, TokenType: "bearer"})
}

// handleVerifyToken handles GET /verify-token. The decision is always a 200
// with a valid flag; 401 is reserved for requests without a usable bearer
// header at all.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		s.sendJSONError(w, http.StatusUnauthorized, errMsg)
		return
	}

	decision, err := s.svc.Verify(r.Context(), tok)
	if err != nil {
		s.logger.Error("verification failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verifyResponse{
		Valid:   decision.Valid,
		Subject: decision.Subject,
		Reason:  string(decision.Reason),
	})
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
