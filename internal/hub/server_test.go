// ABOUTME: Tests for the training hub HTTP API
// ABOUTME: Covers auth gating, registration, resolution and the error mapping

package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chestscan/modelhub/internal/auth"
	"github.com/chestscan/modelhub/internal/model/modeltest"
	"github.com/chestscan/modelhub/internal/pipeline"
	"github.com/chestscan/modelhub/internal/registry"
)

var covidClasses = []modeltest.Class{
	{Name: "COVID", Intensity: 0.2},
	{Name: "Normal", Intensity: 0.8},
}

// stubVerifier accepts one token and can simulate an unavailable auth service.
type stubVerifier struct {
	token string
	down  bool
}

func (v *stubVerifier) Verify(_ context.Context, tokenString string) (auth.Decision, error) {
	if v.down {
		return auth.Decision{}, auth.ErrServiceUnavailable
	}
	if tokenString == v.token {
		return auth.Decision{Valid: true, Subject: "user123"}, nil
	}
	return auth.Decision{Valid: false, Reason: auth.ReasonMalformed}, nil
}

// recordingSubmitter lets tests run evaluation jobs on demand.
type recordingSubmitter struct {
	jobs []pipeline.Job
}

func (s *recordingSubmitter) Submit(job pipeline.Job) bool {
	s.jobs = append(s.jobs, job)
	return true
}

type testHub struct {
	srv      *httptest.Server
	verifier *stubVerifier
	sub      *recordingSubmitter
	bundle   string
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.NewSQLiteRegistry(filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	artifacts, err := registry.NewArtifactStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)

	bundle := filepath.Join(dir, "chest"+registry.ModelFileExt)
	modeltest.WriteBundle(t, bundle, covidClasses)

	sub := &recordingSubmitter{}
	verifier := &stubVerifier{token: "good-token"}
	resolver := registry.NewResolver(reg, artifacts, registry.ModelFileExt)
	server := NewServer(pipeline.New(reg, artifacts, sub), resolver, verifier, nil)

	mux := http.NewServeMux()
	server.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testHub{srv: srv, verifier: verifier, sub: sub, bundle: bundle}
}

func (h *testHub) register(t *testing.T, name, token string, req RegisterModelRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/models/%s/register", h.srv.URL, name), bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	return resp
}

func (h *testHub) registerReq() RegisterModelRequest {
	return RegisterModelRequest{
		ModelFilePath:  h.bundle,
		ClassNames:     []string{"COVID", "Normal"},
		ExperimentName: "covid-detection",
	}
}

func TestRegisterModel(t *testing.T) {
	h := newTestHub(t)

	resp := h.register(t, "chest-xray", "good-token", h.registerReq())
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var v ModelVersionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "chest-xray", v.Name)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, registry.StatusReady, v.Status)
	assert.Empty(t, v.Metrics, "metrics are filled later by evaluation")
	assert.Len(t, h.sub.jobs, 1)
}

func TestRegisterModel_AuthRequired(t *testing.T) {
	h := newTestHub(t)

	resp := h.register(t, "chest-xray", "", h.registerReq())
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.register(t, "chest-xray", "bad-token", h.registerReq())
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, h.sub.jobs, "rejected requests must not schedule evaluation")
}

func TestRegisterModel_AuthServiceDown(t *testing.T) {
	h := newTestHub(t)
	h.verifier.down = true

	resp := h.register(t, "chest-xray", "good-token", h.registerReq())
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode,
		"could-not-check is 503, not 401")
}

func TestRegisterModel_Validation(t *testing.T) {
	h := newTestHub(t)

	req := h.registerReq()
	req.ClassNames = nil
	resp := h.register(t, "chest-xray", "good-token", req)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterModel_BadBundle(t *testing.T) {
	h := newTestHub(t)

	req := h.registerReq()
	req.ModelFilePath = filepath.Join(t.TempDir(), "missing.keras")
	resp := h.register(t, "chest-xray", "good-token", req)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetModel(t *testing.T) {
	h := newTestHub(t)

	resp := h.register(t, "chest-xray", "good-token", h.registerReq())
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err := http.Get(h.srv.URL + "/models/chest-xray")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v ModelVersionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, 1, v.Version)
	assert.NotEmpty(t, v.ArtifactPath, "resolution includes the stored artifact path")
	assert.NotEmpty(t, v.CreatedAt)
}

func TestGetModel_NotFound(t *testing.T) {
	h := newTestHub(t)

	resp, err := http.Get(h.srv.URL + "/models/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListModels(t *testing.T) {
	h := newTestHub(t)

	for _, name := range []string{"chest-xray", "lung-ct"} {
		resp := h.register(t, name, "good-token", h.registerReq())
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(h.srv.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListModelsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Models, 2)
}

func TestListModels_Empty(t *testing.T) {
	h := newTestHub(t)

	resp, err := http.Get(h.srv.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListModelsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list.Models)
}

func TestPingAndHealth(t *testing.T) {
	h := newTestHub(t)

	for _, path := range []string{"/ping", "/health"} {
		resp, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
