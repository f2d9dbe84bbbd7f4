package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/guardbot/internal/db"
)

func (s *sqliteClient) UpsertRestriction(ctx context.Context, restriction *db.Restriction) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO restrictions (chat_id, user_id, kind, until, reason, created_at)
		VALUES (:chat_id, :user_id, :kind, :until, :reason, :created_at)
		ON CONFLICT(chat_id, user_id, kind) DO UPDATE SET
		until=excluded.until,
		reason=excluded.reason,
		created_at=excluded.created_at;
	`
	return tool.Err(s.db.NamedExecContext(ctx, query, restriction))
}

func (s *sqliteClient) DeleteRestriction(ctx context.Context, chatID, userID int64, kind string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM restrictions WHERE chat_id = ? AND user_id = ? AND kind = ?`,
		chatID, userID, kind,
	)
	if err != nil {
		return false, fmt.Errorf("delete restriction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete restriction rows: %w", err)
	}
	return affected > 0, nil
}

func (s *sqliteClient) GetRestriction(ctx context.Context, chatID, userID int64, kind string) (*db.Restriction, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var restriction db.Restriction
	err := s.db.GetContext(ctx, &restriction, `
		SELECT chat_id, user_id, kind, until, reason, created_at
		FROM restrictions
		WHERE chat_id = ? AND user_id = ? AND kind = ?
	`, chatID, userID, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get restriction: %w", err)
	}
	return &restriction, nil
}

func (s *sqliteClient) ListExpiredRestrictions(ctx context.Context, asOf time.Time) ([]db.Restriction, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var restrictions []db.Restriction
	err := s.db.SelectContext(ctx, &restrictions, `
		SELECT chat_id, user_id, kind, until, reason, created_at
		FROM restrictions
		WHERE until <= ?
		ORDER BY until ASC
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list expired restrictions: %w", err)
	}
	return restrictions, nil
}
