package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/format37/panthera/internal/models"
)

// ErrDefaultSession reports a missing or corrupt default session template.
// This is a deployment fault, never recoverable per-request.
var ErrDefaultSession = errors.New("default session template unavailable")

// ErrChatNotFound reports an operation against a chat that has no message log.
var ErrChatNotFound = errors.New("chat not found")

// SessionStore persists per-user bot state.
type SessionStore interface {
	// Get loads the session for userID, materializing and persisting it from
	// the default template on first access.
	Get(ctx context.Context, userID int64) (*models.Session, error)
	// Save overwrites the stored session. Last writer wins.
	Save(ctx context.Context, userID int64, session *models.Session) error
}

// Ref identifies one stored message within a chat log.
type Ref struct {
	ChatID    int64
	Date      int64
	MessageID int
}

// MessageLog is the append-only per-chat message history.
type MessageLog interface {
	Append(ctx context.Context, chatID int64, msg *models.Message) error
	// List returns refs newest-first by (date, message_id). A chat that was
	// never written yields an empty slice, not an error.
	List(ctx context.Context, chatID int64) ([]Ref, error)
	Read(ctx context.Context, ref Ref) (*models.Message, error)
	Remove(ctx context.Context, ref Ref) error
	// Reset deletes every message in the chat. Resetting a chat that was
	// never written returns ErrChatNotFound.
	Reset(ctx context.Context, chatID int64) error
}

// Storage combines both stores behind a single backend.
type Storage interface {
	SessionStore
	MessageLog
	Close() error
}

// LoadDefaultSession reads the template used to materialize first-contact
// sessions. The file backend reads it lazily; memory and postgres take the
// loaded template up front.
func LoadDefaultSession(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDefaultSession, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDefaultSession, err)
	}
	return &session, nil
}
