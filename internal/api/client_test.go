// internal/api/client_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavach/opsengine/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123", 0)

	require.NotNil(t, c)
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret123", c.apiKey)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret", time.Second)
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "key", time.Second)
	assert.NoError(t, c.Healthcheck(context.Background()))
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "", time.Second) // unlikely to be listening
	err := c.Healthcheck(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "", time.Second)
	err := c.Healthcheck(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "status 500")
}

func TestPredict_Success(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_, _ = w.Write([]byte(`{
			"risk_level": "Medium",
			"risk_score": 57,
			"alert": "Caution advised",
			"probabilities": {"High": 0.2, "Low": 0.1, "Medium": 0.7},
			"confidence": 70,
			"timestamp": "2026-03-01T06:30:00.123456"
		}`))
	}))
	defer server.Close()

	in := core.GeotechnicalInput{
		Zone:             "Zone 2",
		SlopeAngleDeg:    62,
		RainfallMM24h:    80,
		RockStrengthMPa:  35,
		SeismicEvents24h: 2,
		SoilMoisturePct:  40,
		CrackWidthMM:     6,
		MineDepthM:       220,
		PastIncidents:    3,
		BlastingActivity: 1,
	}

	c := New(server.URL, "", time.Second)
	p, err := c.Predict(context.Background(), "Jharia", in)
	require.NoError(t, err)

	assert.Equal(t, "Jharia", received["mine_name"])
	assert.Equal(t, 62.0, received["slope_angle_deg"])
	assert.Equal(t, 1.0, received["blasting_activity"])
	assert.Equal(t, "Zone 2", received["zone"])

	assert.Equal(t, core.RiskMedium, p.Level)
	assert.Equal(t, 57.0, p.Score)
	assert.Equal(t, "Caution advised", p.Alert)
	assert.Equal(t, 0.7, p.Probabilities["Medium"])
	assert.Equal(t, 70.0, p.Confidence)
	assert.Equal(t, time.Date(2026, 3, 1, 6, 30, 0, 123456000, time.UTC), p.Timestamp)
}

func TestPredict_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "model not loaded", contains: "model not loaded"},
		{name: "bad json", status: http.StatusOK, body: `{"risk_level":`, contains: "decoding prediction"},
		{name: "unknown level", status: http.StatusOK, body: `{"risk_level":"Extreme","risk_score":99}`, contains: `unknown risk level "Extreme"`},
		{name: "missing score", status: http.StatusOK, body: `{"risk_level":"Low"}`, contains: "risk score"},
		{name: "score out of range", status: http.StatusOK, body: `{"risk_level":"High","risk_score":140}`, contains: "risk score"},
		{name: "bad timestamp", status: http.StatusOK, body: `{"risk_level":"Low","risk_score":3,"timestamp":"yesterday"}`, contains: "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := New(server.URL, "", time.Second)
			_, err := c.Predict(context.Background(), "Jharia", core.GeotechnicalInput{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUpstream)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestPredict_HonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts watching for client disconnect.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := New(server.URL, "", 5*time.Second)
	_, err := c.Predict(ctx, "Jharia", core.GeotechnicalInput{})
	assert.ErrorIs(t, err, ErrUpstream)
}
