package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/format37/panthera/internal/models"
	"go.uber.org/zap"
)

// FileStorage keeps sessions and message logs as flat JSON documents:
// <dataDir>/users/<user_id>.json and
// <dataDir>/chats/<chat_id>/<date>_<message_id>.json.
type FileStorage struct {
	usersDir string
	chatsDir string
	locks    *keyedMutex
	logger   *zap.Logger
}

func NewFileStorage(dataDir string, logger *zap.Logger) (*FileStorage, error) {
	usersDir := filepath.Join(dataDir, "users")
	chatsDir := filepath.Join(dataDir, "chats")
	for _, dir := range []string{usersDir, chatsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &FileStorage{
		usersDir: usersDir,
		chatsDir: chatsDir,
		locks:    newKeyedMutex(),
		logger:   logger,
	}, nil
}

func (s *FileStorage) Get(_ context.Context, userID int64) (*models.Session, error) {
	unlock := s.locks.lock(userKey(userID))
	defer unlock()

	path := s.userPath(userID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		session, err := LoadDefaultSession(filepath.Join(s.usersDir, "default.json"))
		if err != nil {
			return nil, err
		}
		if err := writeJSON(path, session); err != nil {
			return nil, fmt.Errorf("persist session %d: %w", userID, err)
		}
		s.logger.Info("Materialized session from default template",
			zap.Int64("user_id", userID))
		return session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %d: %w", userID, err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return &session, nil
}

func (s *FileStorage) Save(_ context.Context, userID int64, session *models.Session) error {
	unlock := s.locks.lock(userKey(userID))
	defer unlock()

	if err := writeJSON(s.userPath(userID), session); err != nil {
		return fmt.Errorf("save session %d: %w", userID, err)
	}
	return nil
}

func (s *FileStorage) Append(_ context.Context, chatID int64, msg *models.Message) error {
	unlock := s.locks.lock(chatKey(chatID))
	defer unlock()

	dir := s.chatDir(chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chat dir %d: %w", chatID, err)
	}
	name := fmt.Sprintf("%d_%d.json", msg.Date, msg.MessageID)
	if err := writeJSON(filepath.Join(dir, name), msg); err != nil {
		return fmt.Errorf("append message %d to chat %d: %w", msg.MessageID, chatID, err)
	}
	return nil
}

func (s *FileStorage) List(_ context.Context, chatID int64) ([]Ref, error) {
	unlock := s.locks.lock(chatKey(chatID))
	defer unlock()

	entries, err := os.ReadDir(s.chatDir(chatID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list chat %d: %w", chatID, err)
	}

	refs := make([]Ref, 0, len(entries))
	for _, entry := range entries {
		date, messageID, ok := parseMessageName(entry.Name())
		if !ok {
			continue
		}
		refs = append(refs, Ref{ChatID: chatID, Date: date, MessageID: messageID})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Date != refs[j].Date {
			return refs[i].Date > refs[j].Date
		}
		return refs[i].MessageID > refs[j].MessageID
	})
	return refs, nil
}

func (s *FileStorage) Read(_ context.Context, ref Ref) (*models.Message, error) {
	data, err := os.ReadFile(s.messagePath(ref))
	if err != nil {
		return nil, fmt.Errorf("read message %d/%d: %w", ref.Date, ref.MessageID, err)
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message %d/%d: %w", ref.Date, ref.MessageID, err)
	}
	return &msg, nil
}

func (s *FileStorage) Remove(_ context.Context, ref Ref) error {
	if err := os.Remove(s.messagePath(ref)); err != nil {
		return fmt.Errorf("remove message %d/%d: %w", ref.Date, ref.MessageID, err)
	}
	return nil
}

func (s *FileStorage) Reset(_ context.Context, chatID int64) error {
	unlock := s.locks.lock(chatKey(chatID))
	defer unlock()

	dir := s.chatDir(chatID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset chat %d: %w", chatID, ErrChatNotFound)
	}
	if err != nil {
		return fmt.Errorf("reset chat %d: %w", chatID, err)
	}

	for _, entry := range entries {
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("reset chat %d: %w", chatID, err)
		}
	}
	s.logger.Info("Reset chat history",
		zap.Int64("chat_id", chatID),
		zap.Int("removed", len(entries)))
	return nil
}

func (s *FileStorage) Close() error {
	// Nothing held open between operations.
	return nil
}

func (s *FileStorage) userPath(userID int64) string {
	return filepath.Join(s.usersDir, fmt.Sprintf("%d.json", userID))
}

func (s *FileStorage) chatDir(chatID int64) string {
	return filepath.Join(s.chatsDir, strconv.FormatInt(chatID, 10))
}

func (s *FileStorage) messagePath(ref Ref) string {
	return filepath.Join(s.chatDir(ref.ChatID), fmt.Sprintf("%d_%d.json", ref.Date, ref.MessageID))
}

func parseMessageName(name string) (date int64, messageID int, ok bool) {
	name, found := strings.CutSuffix(name, ".json")
	if !found {
		return 0, 0, false
	}
	datePart, idPart, found := strings.Cut(name, "_")
	if !found {
		return 0, 0, false
	}
	date, err := strconv.ParseInt(datePart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.Atoi(idPart)
	if err != nil {
		return 0, 0, false
	}
	return date, messageID, true
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func userKey(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }
func chatKey(chatID int64) string { return "chat:" + strconv.FormatInt(chatID, 10) }

// keyedMutex serializes operations per entity (one user file or one chat
// directory) so concurrent requests for the same key cannot interleave
// read-modify-write cycles.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
