// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kavach/opsengine/internal/parser"
	"github.com/kavach/opsengine/pkg/core"
)

// ErrUpstream marks failures of the risk model service.
var ErrUpstream = errors.New("predictor unavailable")

// Client handles communication with the rockfall risk model service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Healthcheck checks if the model service is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: healthcheck request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthcheck returned status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

type predictRequest struct {
	core.GeotechnicalInput
	MineName string `json:"mine_name,omitempty"`
}

type predictResponse struct {
	RiskLevel     string             `json:"risk_level"`
	RiskScore     *float64           `json:"risk_score"`
	Alert         string             `json:"alert"`
	Probabilities map[string]float64 `json:"probabilities"`
	Confidence    float64            `json:"confidence"`
	Timestamp     string             `json:"timestamp"`
}

// Predict posts the geotechnical features of a zone and decodes the model output.
func (c *Client) Predict(ctx context.Context, site string, in core.GeotechnicalInput) (core.Prediction, error) {
	body, err := json.Marshal(predictRequest{GeotechnicalInput: in, MineName: site})
	if err != nil {
		return core.Prediction{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return core.Prediction{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Prediction{}, fmt.Errorf("%w: predict request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.Prediction{}, fmt.Errorf("%w: predict returned status %d: %s",
			ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.Prediction{}, fmt.Errorf("%w: decoding prediction: %v", ErrUpstream, err)
	}
	return out.toPrediction()
}

func (r predictResponse) toPrediction() (core.Prediction, error) {
	level := core.RiskLevel(r.RiskLevel)
	if !level.Valid() {
		return core.Prediction{}, fmt.Errorf("%w: unknown risk level %q", ErrUpstream, r.RiskLevel)
	}
	if r.RiskScore == nil || *r.RiskScore < 0 || *r.RiskScore > 100 {
		return core.Prediction{}, fmt.Errorf("%w: risk score missing or out of range", ErrUpstream)
	}

	p := core.Prediction{
		Level:         level,
		Score:         *r.RiskScore,
		Alert:         r.Alert,
		Probabilities: r.Probabilities,
		Confidence:    r.Confidence,
	}
	if r.Timestamp != "" {
		ts, err := parser.ParseTimestamp(r.Timestamp)
		if err != nil {
			return core.Prediction{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		p.Timestamp = ts
	}
	return p, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
