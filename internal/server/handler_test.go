package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/format37/panthera/internal/history"
	"github.com/format37/panthera/internal/llm"
	"github.com/format37/panthera/internal/menu"
	"github.com/format37/panthera/internal/models"
	"github.com/format37/panthera/internal/server"
	"github.com/format37/panthera/internal/storage"
)

type completerFunc func(ctx context.Context, model string, turns []models.Turn) (string, error)

func (f completerFunc) Complete(ctx context.Context, model string, turns []models.Turn) (string, error) {
	return f(ctx, model, turns)
}

// unitCounter charges one token per accumulated turn.
type unitCounter struct{}

func (unitCounter) Count(_ context.Context, text, _ string) (int, error) {
	var turns []models.Turn
	if err := json.Unmarshal([]byte(text), &turns); err != nil {
		return 0, err
	}
	return len(turns), nil
}

func testMenu(t *testing.T) *menu.Menu {
	t.Helper()
	path := filepath.Join(t.TempDir(), "menu.json")
	content := `{"Main menu": {"buttons": [{"text": "Talk"}]}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write menu: %v", err)
	}
	m, err := menu.Load(path)
	if err != nil {
		t.Fatalf("load menu: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, store storage.Storage, complete completerFunc) *server.Server {
	t.Helper()
	asm := history.New(store, unitCounter{}, 100, zap.NewNop())
	return server.New(store, asm, complete, testMenu(t), server.Options{
		DefaultModel: "gpt-4-0125-preview",
	}, zap.NewNop())
}

func defaultSession() *models.Session {
	return &models.Session{LastCmd: "start", Model: "gpt-4-0125-preview", Topics: map[string]models.Topic{}}
}

func inboundMessage(text string) *models.Message {
	return &models.Message{
		MessageID: 22,
		From:      models.User{ID: 106129214, FirstName: "Alex", Username: "format37", LanguageCode: "en", IsPremium: true},
		Chat:      models.Chat{ID: 106129214, FirstName: "Alex", Username: "format37", Type: models.ChatTypePrivate},
		Date:      1698311200,
		Text:      text,
	}
}

func postMessage(t *testing.T, srv *server.Server, msg *models.Message) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp map[string]string
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage(defaultSession()), nil)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp)
	}
}

func TestMessagePipeline(t *testing.T) {
	store := storage.NewMemoryStorage(defaultSession())
	srv := newTestServer(t, store, func(_ context.Context, model string, turns []models.Turn) (string, error) {
		if model != "gpt-4-0125-preview" {
			t.Errorf("unexpected model %q", model)
		}
		if len(turns) != 2 || turns[0].Role != models.RoleSystem || turns[1].Content != "Alex: 9" {
			t.Errorf("unexpected prompt: %v", turns)
		}
		return "The answer is 9.", nil
	})

	w, resp := postMessage(t, srv, inboundMessage("9"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["reply"] != "The answer is 9." {
		t.Errorf("unexpected reply %q", resp["reply"])
	}

	// Both the inbound message and the bot reply are logged, newest first.
	refs, err := store.List(context.Background(), 106129214)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 logged messages, got %d", len(refs))
	}
	reply, err := store.Read(context.Background(), refs[0])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reply.IsFromBot() || reply.MessageID != 23 || reply.Text != "The answer is 9." {
		t.Errorf("unexpected logged reply: %+v", reply)
	}
}

func TestMessageCompletionFailure(t *testing.T) {
	store := storage.NewMemoryStorage(defaultSession())
	srv := newTestServer(t, store, func(context.Context, string, []models.Turn) (string, error) {
		return "", &llm.CompletionError{Err: errors.New("malformed payload")}
	})

	w, resp := postMessage(t, srv, inboundMessage("hello"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["reply"] != "Sorry, I couldn't understand." {
		t.Errorf("expected apology reply, got %q", resp["reply"])
	}

	// The inbound message must survive the failed completion.
	refs, err := store.List(context.Background(), 106129214)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected inbound message retained, got %d messages", len(refs))
	}
}

func TestResetCommand(t *testing.T) {
	store := storage.NewMemoryStorage(defaultSession())
	srv := newTestServer(t, store, nil)
	ctx := context.Background()

	if err := store.Append(ctx, 106129214, inboundMessage("old message")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	w, resp := postMessage(t, srv, inboundMessage("/reset"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["reply"] != "Chat history cleared." {
		t.Errorf("unexpected reply %q", resp["reply"])
	}

	refs, err := store.List(ctx, 106129214)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected empty log after reset, got %v", refs)
	}

	// The session records the command.
	session, err := store.Get(ctx, 106129214)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.LastCmd != "/reset" {
		t.Errorf("expected last_cmd /reset, got %q", session.LastCmd)
	}
}

func TestResetUnknownChat(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage(defaultSession()), nil)

	w, resp := postMessage(t, srv, inboundMessage("/reset"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["reply"] != "Nothing to reset." {
		t.Errorf("unexpected reply %q", resp["reply"])
	}
}

func TestButtonUpdatesSession(t *testing.T) {
	store := storage.NewMemoryStorage(defaultSession())
	srv := newTestServer(t, store, nil)

	w, _ := postMessage(t, srv, inboundMessage("Talk"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	session, err := store.Get(context.Background(), 106129214)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.LastCmd != "Talk" {
		t.Errorf("expected last_cmd Talk, got %q", session.LastCmd)
	}

	// Button presses never reach the message log.
	refs, err := store.List(context.Background(), 106129214)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected empty log, got %v", refs)
	}
}

func TestInvalidBody(t *testing.T) {
	srv := newTestServer(t, storage.NewMemoryStorage(defaultSession()), nil)

	req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
