package db

import (
	"context"
	"time"
)

type Client interface {
	Close() error

	AddWarning(ctx context.Context, warning *Warning) (int, error)
	RemoveLastWarning(ctx context.Context, chatID, userID int64) (bool, error)
	ListWarnings(ctx context.Context, chatID, userID int64) ([]Warning, error)
	CountWarnings(ctx context.Context, chatID, userID int64) (int, error)
	ClearWarnings(ctx context.Context, chatID, userID int64) error

	UpsertRestriction(ctx context.Context, restriction *Restriction) error
	DeleteRestriction(ctx context.Context, chatID, userID int64, kind string) (bool, error)
	GetRestriction(ctx context.Context, chatID, userID int64, kind string) (*Restriction, error)
	ListExpiredRestrictions(ctx context.Context, asOf time.Time) ([]Restriction, error)
}
