package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/format37/panthera/internal/models"
)

func defaultTemplate() *models.Session {
	return &models.Session{LastCmd: "start", Model: "gpt-4-0125-preview", Topics: map[string]models.Topic{}}
}

func TestMemoryGetMaterializesDefault(t *testing.T) {
	s := NewMemoryStorage(defaultTemplate())
	ctx := context.Background()

	session, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(session, defaultTemplate()) {
		t.Errorf("expected default template, got %+v", session)
	}

	// Mutating the returned session must not leak into the store.
	session.Model = "other"
	again, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Model != "gpt-4-0125-preview" {
		t.Errorf("stored session was mutated: %+v", again)
	}
}

func TestMemoryGetWithoutTemplate(t *testing.T) {
	s := NewMemoryStorage(nil)

	_, err := s.Get(context.Background(), 1)
	if !errors.Is(err, ErrDefaultSession) {
		t.Fatalf("expected ErrDefaultSession, got %v", err)
	}
}

func TestMemorySessionRoundTrip(t *testing.T) {
	s := NewMemoryStorage(defaultTemplate())
	ctx := context.Background()

	session := &models.Session{LastCmd: "/reset", Model: "gpt-3.5-turbo"}
	session.AddEvaluation("history", 5)

	if err := s.Save(ctx, 2, session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(session, loaded) {
		t.Errorf("round trip mismatch: %+v vs %+v", session, loaded)
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	s := NewMemoryStorage(defaultTemplate())
	ctx := context.Background()
	const chatID = int64(10)

	dates := []int64{1698311300, 1698311100, 1698311200}
	for i, date := range dates {
		msg := &models.Message{MessageID: i + 1, Date: date, Text: "m",
			From: models.User{ID: 5}, Chat: models.Chat{ID: chatID, Type: models.ChatTypePrivate}}
		if err := s.Append(ctx, chatID, msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	refs, err := s.List(ctx, chatID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Ref{
		{ChatID: chatID, Date: 1698311300, MessageID: 1},
		{ChatID: chatID, Date: 1698311200, MessageID: 3},
		{ChatID: chatID, Date: 1698311100, MessageID: 2},
	}
	if !reflect.DeepEqual(refs, want) {
		t.Errorf("wrong order:\n got %v\nwant %v", refs, want)
	}
}

func TestMemoryResetMissingChat(t *testing.T) {
	s := NewMemoryStorage(defaultTemplate())

	err := s.Reset(context.Background(), 99)
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}
