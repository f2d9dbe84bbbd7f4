package sqlite

import (
	"context"
	"fmt"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/guardbot/internal/db"
)

// AddWarning inserts the warning and returns the total count for the key.
// Insert and count run in one transaction, so the returned count is the
// durable post-commit value.
func (s *sqliteClient) AddWarning(ctx context.Context, warning *db.Warning) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin warning tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO warnings (chat_id, user_id, reason, issuer_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, warning.ChatID, warning.UserID, warning.Reason, warning.IssuerID, warning.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert warning: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("warning insert id: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM warnings WHERE chat_id = ? AND user_id = ?`,
		warning.ChatID, warning.UserID,
	); err != nil {
		return 0, fmt.Errorf("count warnings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit warning: %w", err)
	}
	warning.ID = id
	return count, nil
}

func (s *sqliteClient) RemoveLastWarning(ctx context.Context, chatID, userID int64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM warnings WHERE id = (
			SELECT id FROM warnings
			WHERE chat_id = ? AND user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("remove last warning: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove last warning rows: %w", err)
	}
	return affected > 0, nil
}

func (s *sqliteClient) ListWarnings(ctx context.Context, chatID, userID int64) ([]db.Warning, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var warnings []db.Warning
	err := s.db.SelectContext(ctx, &warnings, `
		SELECT id, chat_id, user_id, reason, issuer_id, created_at
		FROM warnings
		WHERE chat_id = ? AND user_id = ?
		ORDER BY created_at ASC, id ASC
	`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	return warnings, nil
}

func (s *sqliteClient) CountWarnings(ctx context.Context, chatID, userID int64) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM warnings WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("count warnings: %w", err)
	}
	return count, nil
}

func (s *sqliteClient) ClearWarnings(ctx context.Context, chatID, userID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return tool.Err(s.db.ExecContext(ctx,
		`DELETE FROM warnings WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	))
}
