package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"caps-bot/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type AuditRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAuditRepository(db *sql.DB, logger zerolog.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	id := entry.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, guild_id, session_id, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, entry.GuildID, entry.SessionID, entry.Event, entry.Detail, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest audit entries for a guild.
func (r *AuditRepository) Recent(ctx context.Context, guildID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, guild_id, session_id, event, detail, created_at
		FROM audit_log WHERE guild_id = ?
		ORDER BY created_at DESC LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.GuildID, &e.SessionID, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
