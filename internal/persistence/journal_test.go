package persistence

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"StableVault/internal/event"
)

// ============================================================================
// Test: operation row construction
// ============================================================================

func TestNewOperationRow(t *testing.T) {
	user := uuid.New()
	env := event.Envelope{
		Sequence:  7,
		Timestamp: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Payload: &event.DebtMinted{
			User:   user,
			Amount: big.NewInt(1000),
		},
	}

	row, err := NewOperationRow(env)
	if err != nil {
		t.Fatalf("NewOperationRow: %v", err)
	}
	if row.Sequence != 7 {
		t.Errorf("sequence = %d, want 7", row.Sequence)
	}
	if row.EventType != "DebtMinted" {
		t.Errorf("event_type = %q, want DebtMinted", row.EventType)
	}
	if row.Subject != "debt.minted" {
		t.Errorf("subject = %q, want debt.minted", row.Subject)
	}
	if !row.Timestamp.Equal(env.Timestamp) {
		t.Errorf("timestamp = %v, want %v", row.Timestamp, env.Timestamp)
	}

	var payload struct {
		User string `json:"user"`
	}
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.User != user.String() {
		t.Errorf("payload user = %q, want %q", payload.User, user)
	}
}

func TestMigrationVersionExtraction(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"0001_operations.up.sql", "0001"},
		{"0002_indexes.down.sql", "0002"},
		{"nounderscores.up.sql", "nounderscores.up.sql"},
	}
	for _, tc := range cases {
		if got := extractVersion(tc.filename); got != tc.want {
			t.Errorf("extractVersion(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}
