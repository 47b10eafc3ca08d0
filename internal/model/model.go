// Package model wraps a remote sequence-learning inference service as
// one more strategy in the ensemble. The engine treats it exactly like
// the rule strategies; only the stats query sees its training metadata.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"ensemble-engine/internal/game"
	"ensemble-engine/internal/strategy"
)

// MetricsInterface defines the metrics methods the client reports to.
type MetricsInterface interface {
	ModelPredictionInc()
	ModelFailureInc()
}

// Config holds the inference service settings.
type Config struct {
	BaseURL string
	Name    string
	Timeout time.Duration
}

// Client calls the inference HTTP service. Unavailability is reported
// as strategy.ErrUnavailable so the engine excludes it from the cycle
// instead of aborting.
type Client struct {
	name    string
	rest    *resty.Client
	metrics MetricsInterface

	trained bool
	version string
}

type predictRequest struct {
	Window []string `json:"window"`
}

type predictResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

type healthResponse struct {
	Trained bool   `json:"trained"`
	Version string `json:"version"`
}

// New builds a client and probes the service's health endpoint for
// training metadata. A failed probe leaves the client usable but
// marked untrained; predictions will surface errors per call.
func New(cfg Config, m MetricsInterface) *Client {
	if cfg.Name == "" {
		cfg.Name = "lstm"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	c := &Client{
		name:    cfg.Name,
		rest:    resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout),
		metrics: m,
		version: "unknown",
	}

	var health healthResponse
	resp, err := c.rest.R().SetResult(&health).Get("/health")
	if err != nil || resp.IsError() {
		log.Warn().Err(err).Str("url", cfg.BaseURL).Msg("model health check failed, metadata unavailable")
		return c
	}
	c.trained = health.Trained
	c.version = health.Version
	log.Info().Str("model", c.name).Str("version", c.version).Bool("trained", c.trained).Msg("model service connected")
	return c
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Trained() bool { return c.trained }

func (c *Client) Version() string { return c.version }

// Predict posts the window to the inference service. Any transport,
// decode, or service error maps to strategy.ErrUnavailable; the client
// never substitutes a stale or default label.
func (c *Client) Predict(ctx context.Context, w game.Window) (strategy.Prediction, error) {
	labels := make([]string, len(w))
	for i, o := range w {
		labels[i] = string(o)
	}

	var out predictResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(predictRequest{Window: labels}).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		c.fail()
		return strategy.Prediction{}, fmt.Errorf("%w: %v", strategy.ErrUnavailable, err)
	}
	if resp.IsError() {
		c.fail()
		return strategy.Prediction{}, fmt.Errorf("%w: inference service returned %s", strategy.ErrUnavailable, resp.Status())
	}
	if out.Error != "" {
		c.fail()
		return strategy.Prediction{}, fmt.Errorf("%w: %s", strategy.ErrUnavailable, out.Error)
	}

	if out.Label == "" {
		// The service can abstain explicitly with an empty label.
		c.observe()
		return strategy.NewAbstention(c.name), nil
	}
	label, err := game.ParseOutcome(out.Label)
	if err != nil {
		c.fail()
		return strategy.Prediction{}, fmt.Errorf("%w: %v", strategy.ErrUnavailable, err)
	}
	if out.Confidence < 0 || out.Confidence > 1 || out.Confidence != out.Confidence {
		c.fail()
		return strategy.Prediction{}, fmt.Errorf("%w: invalid confidence %f", strategy.ErrUnavailable, out.Confidence)
	}

	c.observe()
	return strategy.New(c.name, label, out.Confidence), nil
}

// OnOutcome forwards the resolved outcome to the service so it can
// learn online. Failures are logged only; resolution must not stall on
// the model.
func (c *Client) OnOutcome(p strategy.Prediction, actual game.Outcome) {
	body := map[string]string{
		"predicted": string(p.Label),
		"actual":    string(actual),
	}
	if _, err := c.rest.R().SetBody(body).Post("/outcome"); err != nil {
		log.Warn().Err(err).Str("model", c.name).Msg("model outcome notification failed")
	}
}

func (c *Client) observe() {
	if c.metrics != nil {
		c.metrics.ModelPredictionInc()
	}
}

func (c *Client) fail() {
	if c.metrics != nil {
		c.metrics.ModelFailureInc()
	}
}
