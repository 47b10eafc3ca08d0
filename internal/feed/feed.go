// Package feed streams realized outcomes from a table feed over
// websocket and hands them to the engine for resolution.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ensemble-engine/internal/game"
)

// Event is one realized outcome delivered by the feed.
type Event struct {
	Outcome   game.Outcome
	SessionID string
	Ts        time.Time
}

type message struct {
	Result    string `json:"result"`
	SessionID string `json:"sessionId"`
	Ts        int64  `json:"ts"`
}

// MetricsInterface defines the metrics methods the feed reports to.
type MetricsInterface interface {
	FeedReconnectInc()
}

type Feed struct {
	url     string
	metrics MetricsInterface
}

func New(url string, m MetricsInterface) *Feed {
	return &Feed{url: url, metrics: m}
}

// Stream keeps a connection to the feed open until the context ends,
// reconnecting with exponential backoff, and sends every valid outcome
// event on the channel. Malformed messages are logged and dropped.
func (f *Feed) Stream(ctx context.Context, events chan<- Event, ping time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // retry until the context ends

	for {
		err := f.streamOnce(ctx, events, ping)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := policy.NextBackOff()
		log.Warn().Err(err).Dur("backoff", wait).Msg("feed connection lost, reconnecting")
		if f.metrics != nil {
			f.metrics.FeedReconnectInc()
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) streamOnce(ctx context.Context, events chan<- Event, ping time.Duration) error {
	log.Info().Str("url", f.url).Msg("connecting to outcome feed")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "ch": "results"}); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	msgs := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msgs <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		case err := <-readErr:
			return fmt.Errorf("read failed: %w", err)
		case data := <-msgs:
			ev, err := parseEvent(data)
			if err != nil {
				log.Warn().Err(err).Msg("dropping malformed feed message")
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func parseEvent(data []byte) (Event, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return Event{}, fmt.Errorf("decode: %w", err)
	}
	outcome, err := game.ParseOutcome(m.Result)
	if err != nil {
		return Event{}, err
	}
	ts := time.Now()
	if m.Ts > 0 {
		ts = time.UnixMilli(m.Ts)
	}
	return Event{Outcome: outcome, SessionID: m.SessionID, Ts: ts}, nil
}
