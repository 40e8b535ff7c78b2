package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// HistoryService reads the vault.operations journal. Live position state is
// served by the engine directly; this covers the audit trail.
type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	return &HistoryService{db: db}
}

// OperationRecord is one journaled notification.
type OperationRecord struct {
	Sequence   int64           `json:"sequence"`
	EventType  string          `json:"event_type"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

const maxPageSize = 500

// Operations returns journal rows with sequence greater than after, oldest
// first, optionally filtered by event type. Limit is clamped to maxPageSize.
func (s *HistoryService) Operations(ctx context.Context, after int64, limit int, eventType string) ([]OperationRecord, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	query := `SELECT sequence, event_type, subject, payload, occurred_at
		FROM vault.operations
		WHERE sequence > $1`
	args := []interface{}{after}
	if eventType != "" {
		query += ` AND event_type = $2 ORDER BY sequence ASC LIMIT $3`
		args = append(args, eventType, limit)
	} else {
		query += ` ORDER BY sequence ASC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var out []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		if err := rows.Scan(&rec.Sequence, &rec.EventType, &rec.Subject, &rec.Payload, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HeadSequence returns the newest journaled sequence, or 0 on an empty
// journal. Clients compare it with response sequences for freshness.
func (s *HistoryService) HeadSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM vault.operations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query head sequence: %w", err)
	}
	return seq.Int64, nil
}
