// ABOUTME: Tests for the serving backend API using fake hub and identity collaborators
// ABOUTME: Exercises the predict upload path with a real bundle on disk

package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chestscan/modelhub/internal/auth"
	"github.com/chestscan/modelhub/internal/hub"
	"github.com/chestscan/modelhub/internal/model/modeltest"
	"github.com/chestscan/modelhub/internal/registry"
)

var covidClasses = []modeltest.Class{
	{Name: "COVID", Intensity: 0.2},
	{Name: "Normal", Intensity: 0.8},
}

// fakeModelSource serves versions from a map and can simulate a hub outage.
type fakeModelSource struct {
	versions map[string]*hub.ModelVersionResponse
	down     bool
}

func (f *fakeModelSource) Latest(_ context.Context, name string) (*hub.ModelVersionResponse, error) {
	if f.down {
		return nil, hub.ErrHubUnavailable
	}
	v, ok := f.versions[name]
	if !ok {
		return nil, registry.ErrModelNotFound
	}
	return v, nil
}

func (f *fakeModelSource) List(context.Context) ([]hub.ModelVersionResponse, error) {
	if f.down {
		return nil, hub.ErrHubUnavailable
	}
	var out []hub.ModelVersionResponse
	for _, v := range f.versions {
		out = append(out, *v)
	}
	return out, nil
}

// fakeIssuer validates one credential pair and can simulate an outage.
type fakeIssuer struct {
	down bool
}

func (f *fakeIssuer) Login(_ context.Context, username, password string) (string, error) {
	if f.down {
		return "", auth.ErrServiceUnavailable
	}
	if username == "user123" && password == "pass123" {
		return "issued-token", nil
	}
	return "", auth.ErrFailedAuthentication
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

type testServing struct {
	srv      *httptest.Server
	source   *fakeModelSource
	issuer   *fakeIssuer
	verifier *stubVerifier
}

func newTestServing(t *testing.T) *testServing {
	t.Helper()

	bundle := filepath.Join(t.TempDir(), "chest.keras")
	modeltest.WriteBundle(t, bundle, covidClasses)

	source := &fakeModelSource{versions: map[string]*hub.ModelVersionResponse{
		"chest-xray": {
			Name:         "chest-xray",
			Version:      3,
			Status:       registry.StatusReady,
			ArtifactPath: bundle,
			ClassNames:   []string{"COVID", "Normal"},
		},
	}}
	issuer := &fakeIssuer{}
	verifier := &stubVerifier{token: "good-token"}

	mux := http.NewServeMux()
	NewServer(source, issuer, verifier, nil).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServing{srv: srv, source: source, issuer: issuer, verifier: verifier}
}

// predict posts a grayscale PNG at the given intensity to the predict route.
func (ts *testServing) predict(t *testing.T, name, token string, intensity float64) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, modeltest.GrayImage(intensity)))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/models/"+name+"/predict", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogin(t *testing.T) {
	ts := newTestServing(t)

	resp, err := http.Post(ts.srv.URL+"/api/models/login", "application/json",
		bytes.NewReader([]byte(`{"username":"user123","password":"pass123"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "issued-token", body.AccessToken)
	assert.Equal(t, "bearer", body.TokenType)
}

func TestLogin_WrongCredentials(t *testing.T) {
	ts := newTestServing(t)

	resp, err := http.Post(ts.srv.URL+"/api/models/login", "application/json",
		bytes.NewReader([]byte(`{"username":"user123","password":"wrong"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_AuthServiceDown(t *testing.T) {
	ts := newTestServing(t)
	ts.issuer.down = true

	resp, err := http.Post(ts.srv.URL+"/api/models/login", "application/json",
		bytes.NewReader([]byte(`{"username":"user123","password":"pass123"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListModels(t *testing.T) {
	ts := newTestServing(t)

	resp, err := http.Get(ts.srv.URL + "/api/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list hub.ListModelsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Models, 1)
}

func TestListModels_HubDown(t *testing.T) {
	ts := newTestServing(t)
	ts.source.down = true

	resp, err := http.Get(ts.srv.URL + "/api/models")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetModel(t *testing.T) {
	ts := newTestServing(t)

	resp, err := http.Get(ts.srv.URL + "/api/models/chest-xray")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v hub.ModelVersionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, 3, v.Version)
}

func TestGetModel_NotFound(t *testing.T) {
	ts := newTestServing(t)

	resp, err := http.Get(ts.srv.URL + "/api/models/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPredict(t *testing.T) {
	ts := newTestServing(t)

	resp := ts.predict(t, "chest-xray", "good-token", 0.2)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pred PredictionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pred))
	assert.Equal(t, "chest-xray", pred.Model)
	assert.Equal(t, 3, pred.Version)
	assert.Equal(t, "COVID", pred.Class, "a dark scan sits on the COVID centroid")
	assert.Greater(t, pred.Scores["COVID"], pred.Scores["Normal"])
}

func TestPredict_BrightImage(t *testing.T) {
	ts := newTestServing(t)

	resp := ts.predict(t, "chest-xray", "good-token", 0.8)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pred PredictionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pred))
	assert.Equal(t, "Normal", pred.Class)
}

func TestPredict_AuthRequired(t *testing.T) {
	ts := newTestServing(t)

	resp := ts.predict(t, "chest-xray", "", 0.2)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.predict(t, "chest-xray", "bad-token", 0.2)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPredict_AuthServiceDown(t *testing.T) {
	ts := newTestServing(t)
	ts.verifier.down = true

	resp := ts.predict(t, "chest-xray", "good-token", 0.2)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode,
		"could-not-check is 503, not 401")
}

func TestPredict_HubDown(t *testing.T) {
	ts := newTestServing(t)
	ts.source.down = true

	resp := ts.predict(t, "chest-xray", "good-token", 0.2)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPredict_UnknownModel(t *testing.T) {
	ts := newTestServing(t)

	resp := ts.predict(t, "nope", "good-token", 0.2)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPredict_BadUpload(t *testing.T) {
	ts := newTestServing(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "scan.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/models/chest-xray/predict", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer good-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPredict_MissingFileField(t *testing.T) {
	ts := newTestServing(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "hello"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/models/chest-xray/predict", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer good-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPredict_ModelWithoutClassifier(t *testing.T) {
	ts := newTestServing(t)

	bare := filepath.Join(t.TempDir(), "bare.keras")
	modeltest.WriteBundle(t, bare, nil)
	ts.source.versions["bare"] = &hub.ModelVersionResponse{
		Name: "bare", Version: 1, Status: registry.StatusReady, ArtifactPath: bare,
	}

	resp := ts.predict(t, "bare", "good-token", 0.2)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
