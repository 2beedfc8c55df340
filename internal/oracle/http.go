package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"polytrope/internal/thermo"
)

// HTTPConfig configures the external property-service client.
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxConcurrent int           // cap on simultaneous in-flight lookups
	MinInterval   time.Duration // spacing between consecutive requests
	Logger        *zap.Logger   // optional
}

// DefaultHTTPConfig returns sensible defaults for baseURL.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:       baseURL,
		Timeout:       15 * time.Second,
		MaxConcurrent: 4,
		MinInterval:   50 * time.Millisecond,
	}
}

// HTTPClient talks JSON over HTTP to an external IAPWS-IF97-style property
// service. Domain failures come back as typed OutOfRange errors; transport
// failures are wrapped and left to the caller's fault handling.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	logger      *zap.Logger
	sem         chan struct{}
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewHTTPClient creates a property-service client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	c := &HTTPClient{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
		minInterval: cfg.MinInterval,
	}
	if cfg.MaxConcurrent > 0 {
		c.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

type propertyPayload struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

type lookupRequest struct {
	Independent1 propertyPayload `json:"independent1"`
	Independent2 propertyPayload `json:"independent2"`
}

type saturationRequest struct {
	Axis propertyPayload `json:"axis"`
}

type stateResponse struct {
	T     float64 `json:"t"`
	P     float64 `json:"p"`
	V     float64 `json:"v"`
	U     float64 `json:"u"`
	H     float64 `json:"h"`
	S     float64 `json:"s"`
	X     float64 `json:"x"`
	Phase string  `json:"phase"`
}

type envelopeResponse struct {
	Tsat float64 `json:"tsat"`
	Psat float64 `json:"psat"`
	Vf   float64 `json:"vf"`
	Vg   float64 `json:"vg"`
	Uf   float64 `json:"uf"`
	Ug   float64 `json:"ug"`
	Hf   float64 `json:"hf"`
	Hfg  float64 `json:"hfg"`
	Sf   float64 `json:"sf"`
	Sg   float64 `json:"sg"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parsePhase(s string) thermo.Phase {
	switch s {
	case "subcooled", "subcooled_liquid":
		return thermo.PhaseSubcooled
	case "saturated", "two_phase":
		return thermo.PhaseSaturated
	case "superheated", "superheated_vapor":
		return thermo.PhaseSuperheated
	default:
		return thermo.PhaseUnknown
	}
}

// Lookup implements Client.
func (c *HTTPClient) Lookup(ctx context.Context, a, b thermo.Property) (thermo.StateVector, error) {
	req := lookupRequest{
		Independent1: propertyPayload{Kind: a.Kind.String(), Value: a.Value},
		Independent2: propertyPayload{Kind: b.Kind.String(), Value: b.Value},
	}

	var resp stateResponse
	if err := c.post(ctx, "/v1/lookup", req, &resp); err != nil {
		return thermo.StateVector{}, err
	}

	return thermo.StateVector{
		T: resp.T, P: resp.P, V: resp.V,
		U: resp.U, H: resp.H, S: resp.S, X: resp.X,
		Phase: parsePhase(resp.Phase),
	}, nil
}

// SaturationAt implements Client.
func (c *HTTPClient) SaturationAt(ctx context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error) {
	req := saturationRequest{
		Axis: propertyPayload{Kind: axis.Kind.String(), Value: axis.Value},
	}

	var resp envelopeResponse
	if err := c.post(ctx, "/v1/saturation", req, &resp); err != nil {
		return thermo.SaturationEnvelope{}, err
	}

	env := thermo.SaturationEnvelope{
		Tsat: resp.Tsat, Psat: resp.Psat,
		Vf: resp.Vf, Vg: resp.Vg,
		Uf: resp.Uf, Ug: resp.Ug,
		Hf: resp.Hf, Hfg: resp.Hfg,
		Sf: resp.Sf, Sg: resp.Sg,
	}
	if err := env.Validate(); err != nil {
		return thermo.SaturationEnvelope{}, err
	}
	return env, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	// Acquire concurrency slot.
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Request spacing keeps a burst of resolutions polite to the service.
	if c.minInterval > 0 {
		c.mu.Lock()
		elapsed := time.Since(c.lastRequest)
		if elapsed < c.minInterval {
			time.Sleep(c.minInterval - elapsed)
		}
		c.lastRequest = time.Now()
		c.mu.Unlock()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("property service request failed",
			zap.String("path", path), zap.Error(err))
		return fmt.Errorf("property service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("property service call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		var eresp errorResponse
		if err := json.Unmarshal(data, &eresp); err == nil && eresp.Error.Code != "" {
			if eresp.Error.Code == "out_of_range" {
				return &thermo.OutOfRangeError{Reason: eresp.Error.Message}
			}
			return fmt.Errorf("property service error %s: %s", eresp.Error.Code, eresp.Error.Message)
		}
		return fmt.Errorf("property service returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
