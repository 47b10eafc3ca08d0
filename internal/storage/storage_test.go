package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ensemble-engine/internal/aggregate"
	"ensemble-engine/internal/game"
)

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "ensemble-data.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/path"); err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestAppendOutcome_AssignsSequentialIDs(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	for i, o := range []game.Outcome{game.Player, game.Banker, game.Tie} {
		id, err := store.AppendOutcome(game.Record{Outcome: o, Ts: time.Now(), SessionID: "s1"})
		if err != nil {
			t.Fatalf("Failed to append outcome: %v", err)
		}
		if id != uint64(i+1) {
			t.Errorf("Expected id %d, got %d", i+1, id)
		}
	}
}

func TestFetchRecent_MostRecentFirst(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	seq := []game.Outcome{game.Player, game.Banker, game.Player, game.Tie, game.Banker}
	for _, o := range seq {
		if _, err := store.AppendOutcome(game.Record{Outcome: o, Ts: time.Now(), SessionID: "s1"}); err != nil {
			t.Fatalf("Failed to append outcome: %v", err)
		}
	}

	records, err := store.FetchRecent(3)
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	want := []game.Outcome{game.Banker, game.Tie, game.Player}
	for i, rec := range records {
		if rec.Outcome != want[i] {
			t.Errorf("records[%d] = %q, want %q", i, rec.Outcome, want[i])
		}
	}
	if records[0].ID != 5 {
		t.Errorf("Expected newest record id 5, got %d", records[0].ID)
	}
}

func TestFetchRecent_FewerThanRequested(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if _, err := store.AppendOutcome(game.Record{Outcome: game.Player, Ts: time.Now()}); err != nil {
		t.Fatalf("Failed to append outcome: %v", err)
	}

	records, err := store.FetchRecent(10)
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestFetchRecent_Empty(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	records, err := store.FetchRecent(5)
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}

	records, err = store.FetchRecent(0)
	if err != nil || records != nil {
		t.Errorf("FetchRecent(0) = %v, %v", records, err)
	}
}

func TestAppendPredictionLog(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	consensus := aggregate.Consensus{
		Label:      game.Banker,
		Confidence: 0.4,
		Ts:         time.Now(),
		Contributions: []aggregate.Contribution{
			{Strategy: "s1", Label: game.Banker, Confidence: 0.8, Weight: 1.0},
		},
	}

	id, err := store.AppendPredictionLog(consensus, consensus.Contributions)
	if err != nil {
		t.Fatalf("Failed to append prediction log: %v", err)
	}
	if id != 1 {
		t.Errorf("Expected id 1, got %d", id)
	}

	id, err = store.AppendPredictionLog(consensus, nil)
	if err != nil {
		t.Fatalf("Failed to append second log: %v", err)
	}
	if id != 2 {
		t.Errorf("Expected id 2, got %d", id)
	}
}

func TestOutcomeRecord_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	rec := game.Record{
		Outcome:     game.Tie,
		Ts:          time.Now().Truncate(time.Millisecond),
		SessionID:   "session-42",
		PrevPattern: game.Window{game.Player, game.Banker},
	}
	if _, err := store.AppendOutcome(rec); err != nil {
		t.Fatalf("Failed to append outcome: %v", err)
	}

	records, err := store.FetchRecent(1)
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	got := records[0]
	if got.Outcome != rec.Outcome || got.SessionID != rec.SessionID {
		t.Errorf("Record fields lost: %+v", got)
	}
	if len(got.PrevPattern) != 2 || got.PrevPattern[0] != game.Player {
		t.Errorf("PrevPattern lost: %v", got.PrevPattern)
	}
}
