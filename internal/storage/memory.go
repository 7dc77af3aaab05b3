package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/format37/panthera/internal/models"
)

// MemoryStorage is an in-process backend with the same semantics as the file
// backend. Used for tests and for running without persistence.
type MemoryStorage struct {
	mu       sync.RWMutex
	def      *models.Session
	sessions map[int64]*models.Session
	messages map[int64]map[Ref]*models.Message
}

func NewMemoryStorage(defaultSession *models.Session) *MemoryStorage {
	return &MemoryStorage{
		def:      defaultSession,
		sessions: make(map[int64]*models.Session),
		messages: make(map[int64]map[Ref]*models.Message),
	}
}

func (s *MemoryStorage) Get(_ context.Context, userID int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[userID]; exists {
		return session.Clone(), nil
	}
	if s.def == nil {
		return nil, ErrDefaultSession
	}
	session := s.def.Clone()
	s.sessions[userID] = session
	return session.Clone(), nil
}

func (s *MemoryStorage) Save(_ context.Context, userID int64, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[userID] = session.Clone()
	return nil
}

func (s *MemoryStorage) Append(_ context.Context, chatID int64, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.messages[chatID]
	if !exists {
		chat = make(map[Ref]*models.Message)
		s.messages[chatID] = chat
	}
	copied := *msg
	chat[Ref{ChatID: chatID, Date: msg.Date, MessageID: msg.MessageID}] = &copied
	return nil
}

func (s *MemoryStorage) List(_ context.Context, chatID int64) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, exists := s.messages[chatID]
	if !exists {
		return nil, nil
	}
	refs := make([]Ref, 0, len(chat))
	for ref := range chat {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Date != refs[j].Date {
			return refs[i].Date > refs[j].Date
		}
		return refs[i].MessageID > refs[j].MessageID
	})
	return refs, nil
}

func (s *MemoryStorage) Read(_ context.Context, ref Ref) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if chat, exists := s.messages[ref.ChatID]; exists {
		if msg, exists := chat[ref]; exists {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("read message %d/%d: not found", ref.Date, ref.MessageID)
}

func (s *MemoryStorage) Remove(_ context.Context, ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.messages[ref.ChatID]
	if !exists {
		return fmt.Errorf("remove message %d/%d: not found", ref.Date, ref.MessageID)
	}
	if _, exists := chat[ref]; !exists {
		return fmt.Errorf("remove message %d/%d: not found", ref.Date, ref.MessageID)
	}
	delete(chat, ref)
	return nil
}

func (s *MemoryStorage) Reset(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[chatID]; !exists {
		return fmt.Errorf("reset chat %d: %w", chatID, ErrChatNotFound)
	}
	s.messages[chatID] = make(map[Ref]*models.Message)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
