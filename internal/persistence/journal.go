package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StableVault/internal/event"
)

// JournalWriter appends operation notifications to the vault.operations
// journal using multi-row INSERT. Writes are idempotent on sequence, so a
// crash-replayed batch is harmless.
type JournalWriter struct {
	db *sql.DB
}

// OperationRow is one row of vault.operations.
type OperationRow struct {
	Sequence  int64
	EventType string
	Subject   string
	Payload   []byte
	Timestamp time.Time
}

// NewOperationRow flattens an envelope into its journal row.
func NewOperationRow(env event.Envelope) (OperationRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return OperationRow{}, fmt.Errorf("marshal payload seq=%d: %w", env.Sequence, err)
	}
	return OperationRow{
		Sequence:  env.Sequence,
		EventType: env.Payload.EventType().String(),
		Subject:   env.Payload.Subject(),
		Payload:   payload,
		Timestamp: env.Timestamp,
	}, nil
}

func NewJournalWriter(db *sql.DB) *JournalWriter {
	return &JournalWriter{db: db}
}

// WriteBatch inserts rows within tx.
func (w *JournalWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []OperationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault.operations
		(sequence, event_type, subject, payload, occurred_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, r.Sequence, r.EventType, r.Subject, r.Payload, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest journaled sequence, or 0 on an empty
// journal.
func (w *JournalWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM vault.operations`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	return seq.Int64, nil
}
