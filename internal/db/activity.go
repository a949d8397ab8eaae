package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studybuddy/internal/models"
)

// ActivityLog is the append-only record of provider-facing actions and their
// token usage. It is observability history, not session state: nothing in
// the session lifecycle reads it back.
type ActivityLog struct {
	db *sql.DB
}

func NewActivityLog(db *sql.DB) *ActivityLog {
	return &ActivityLog{db: db}
}

// Record appends one activity row.
func (l *ActivityLog) Record(ctx context.Context, sessionID, kind, detail string, usage models.Usage) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO activity_log (session_id, kind, detail, prompt_tokens, completion_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, sessionID, kind, detail, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// Recent returns the newest activity rows, most recent first.
func (l *ActivityLog) Recent(ctx context.Context, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session_id, kind, detail, prompt_tokens, completion_tokens, total_tokens, created_at
		FROM activity_log ORDER BY created_at DESC, id DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var records []models.ActivityRecord
	for rows.Next() {
		var rec models.ActivityRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Kind,
			&rec.Detail,
			&rec.Usage.PromptTokens,
			&rec.Usage.CompletionTokens,
			&rec.Usage.TotalTokens,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return records, nil
}
