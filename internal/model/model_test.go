package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ensemble-engine/internal/game"
	"ensemble-engine/internal/strategy"
)

type countingMetrics struct {
	predictions int
	failures    int
}

func (m *countingMetrics) ModelPredictionInc() { m.predictions++ }
func (m *countingMetrics) ModelFailureInc()    { m.failures++ }

func newServer(t *testing.T, predict http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{Trained: true, Version: "2.1"})
	})
	if predict != nil {
		mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			predict(w, r)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_HealthMetadata(t *testing.T) {
	srv := newServer(t, nil)

	c := New(Config{BaseURL: srv.URL}, nil)
	assert.Equal(t, "lstm", c.Name())
	assert.True(t, c.Trained())
	assert.Equal(t, "2.1", c.Version())
}

func TestNew_UnreachableService(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Name: "seq", Timeout: 200 * time.Millisecond}, nil)
	assert.Equal(t, "seq", c.Name())
	assert.False(t, c.Trained())
	assert.Equal(t, "unknown", c.Version())
}

func TestPredict(t *testing.T) {
	var gotWindow []string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotWindow = req.Window
		json.NewEncoder(w).Encode(predictResponse{Label: "B", Confidence: 0.72})
	})

	m := &countingMetrics{}
	c := New(Config{BaseURL: srv.URL}, m)

	p, err := c.Predict(context.Background(), game.Window{game.Player, game.Banker, game.Player})
	require.NoError(t, err)
	assert.Equal(t, game.Banker, p.Label)
	assert.Equal(t, 0.72, p.Confidence)
	assert.Equal(t, "lstm", p.Strategy)
	assert.Equal(t, []string{"P", "B", "P"}, gotWindow)
	assert.Equal(t, 1, m.predictions)
	assert.Zero(t, m.failures)
}

func TestPredict_ServiceAbstains(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictResponse{Label: ""})
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	p, err := c.Predict(context.Background(), game.Window{game.Player})
	require.NoError(t, err)
	assert.True(t, p.Abstained())
}

func TestPredict_ServiceErrorIsUnavailable(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(predictResponse{Error: "model not loaded"})
	})

	m := &countingMetrics{}
	c := New(Config{BaseURL: srv.URL}, m)
	_, err := c.Predict(context.Background(), game.Window{game.Player})
	assert.ErrorIs(t, err, strategy.ErrUnavailable)
	assert.Equal(t, 1, m.failures)
}

func TestPredict_HTTPErrorIsUnavailable(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	_, err := c.Predict(context.Background(), game.Window{game.Player})
	assert.ErrorIs(t, err, strategy.ErrUnavailable)
}

func TestPredict_InvalidResponsesRejected(t *testing.T) {
	tests := []struct {
		name string
		resp predictResponse
	}{
		{"unknown label", predictResponse{Label: "Q", Confidence: 0.5}},
		{"confidence above one", predictResponse{Label: "P", Confidence: 1.2}},
		{"negative confidence", predictResponse{Label: "P", Confidence: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.resp)
			})
			c := New(Config{BaseURL: srv.URL}, nil)
			_, err := c.Predict(context.Background(), game.Window{game.Player})
			assert.ErrorIs(t, err, strategy.ErrUnavailable)
		})
	}
}

func TestPredict_ContextCancelled(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		json.NewEncoder(w).Encode(predictResponse{Label: "P", Confidence: 0.5})
	})

	c := New(Config{BaseURL: srv.URL}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Predict(ctx, game.Window{game.Player})
	assert.ErrorIs(t, err, strategy.ErrUnavailable)
}
