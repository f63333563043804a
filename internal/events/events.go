// Package events publishes moderation transitions.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Type names a moderation transition.
type Type string

const (
	AssetSubmitted Type = "asset.submitted"
	AssetApproved  Type = "asset.approved"
	AssetRejected  Type = "asset.rejected"
)

// Event is one transition of one asset.
type Event struct {
	Type       Type      `json:"type"`
	AssetID    string    `json:"assetId"`
	UploaderID string    `json:"uploaderId"`
	ActorID    string    `json:"actorId"`
	At         time.Time `json:"at"`
}

// Publisher delivers events. Publish failures never undo a transition; callers
// log them and move on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Log writes events to a structured logger. It is the publisher when no
// broker is configured.
type Log struct {
	logger *slog.Logger
}

var _ Publisher = (*Log)(nil)

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, e Event) error {
	l.logger.InfoContext(ctx, "moderation event",
		slog.String("type", string(e.Type)),
		slog.String("assetID", e.AssetID),
		slog.String("uploaderID", e.UploaderID),
		slog.String("actorID", e.ActorID),
	)
	return nil
}

func (l *Log) Close() error { return nil }
