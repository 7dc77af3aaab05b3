package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/format37/panthera/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStorage keeps session and message documents as JSONB rows, with
// the same observable semantics as the file backend.
type PostgresStorage struct {
	db  *sql.DB
	def *models.Session
}

func NewPostgresStorage(config DatabaseConfig, defaultSession *models.Session) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db, def: defaultSession}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) Get(ctx context.Context, userID int64) (*models.Session, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM sessions WHERE user_id = $1`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		if s.def == nil {
			return nil, ErrDefaultSession
		}
		session := s.def.Clone()
		if err := s.Save(ctx, userID, session); err != nil {
			return nil, fmt.Errorf("persist session %d: %w", userID, err)
		}
		return session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %d: %w", userID, err)
	}

	var session models.Session
	if err := json.Unmarshal(doc, &session); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return &session, nil
}

func (s *PostgresStorage) Save(ctx context.Context, userID int64, session *models.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", userID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET document = $2, updated_at = now()`,
		userID, doc)
	if err != nil {
		return fmt.Errorf("save session %d: %w", userID, err)
	}
	return nil
}

func (s *PostgresStorage) Append(ctx context.Context, chatID int64, msg *models.Message) error {
	doc, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %d: %w", msg.MessageID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, date, message_id, document)
		VALUES ($1, $2, $3, $4)`,
		chatID, msg.Date, msg.MessageID, doc)
	if err != nil {
		return fmt.Errorf("append message %d to chat %d: %w", msg.MessageID, chatID, err)
	}
	return nil
}

func (s *PostgresStorage) List(ctx context.Context, chatID int64) ([]Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, message_id FROM messages
		WHERE chat_id = $1
		ORDER BY date DESC, message_id DESC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		ref := Ref{ChatID: chatID}
		if err := rows.Scan(&ref.Date, &ref.MessageID); err != nil {
			return nil, fmt.Errorf("scan message ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStorage) Read(ctx context.Context, ref Ref) (*models.Message, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM messages
		WHERE chat_id = $1 AND date = $2 AND message_id = $3`,
		ref.ChatID, ref.Date, ref.MessageID).Scan(&doc)
	if err != nil {
		return nil, fmt.Errorf("read message %d/%d: %w", ref.Date, ref.MessageID, err)
	}

	var msg models.Message
	if err := json.Unmarshal(doc, &msg); err != nil {
		return nil, fmt.Errorf("decode message %d/%d: %w", ref.Date, ref.MessageID, err)
	}
	return &msg, nil
}

func (s *PostgresStorage) Remove(ctx context.Context, ref Ref) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE chat_id = $1 AND date = $2 AND message_id = $3`,
		ref.ChatID, ref.Date, ref.MessageID)
	if err != nil {
		return fmt.Errorf("remove message %d/%d: %w", ref.Date, ref.MessageID, err)
	}
	return nil
}

func (s *PostgresStorage) Reset(ctx context.Context, chatID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("reset chat %d: %w", chatID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset chat %d: %w", chatID, err)
	}
	if affected == 0 {
		return fmt.Errorf("reset chat %d: %w", chatID, ErrChatNotFound)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
