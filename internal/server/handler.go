package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/format37/panthera/internal/llm"
	"github.com/format37/panthera/internal/menu"
	"github.com/format37/panthera/internal/models"
	"github.com/format37/panthera/internal/storage"
)

const apologyReply = "Sorry, I couldn't understand."

type messageResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply,omitempty"`
}

// handleMessage runs the full pipeline for one inbound message: load the
// session, classify the text, append to the log, assemble the bounded
// history, call the completion service, and log the reply. Every step is
// synchronous; a failed step fails the request with the inbound message
// already persisted.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		Error(w, http.StatusBadRequest, "invalid message body")
		return
	}
	ctx := r.Context()

	session, err := s.store.Get(ctx, msg.From.ID)
	if err != nil {
		s.logger.Error("Failed to load session",
			zap.Error(err),
			zap.Int64("user_id", msg.From.ID))
		Error(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	switch s.menu.Classify(msg.Text) {
	case menu.TypeCommand:
		s.handleCommand(ctx, w, session, &msg)
	case menu.TypeButton:
		session.LastCmd = msg.Text
		if err := s.store.Save(ctx, msg.From.ID, session); err != nil {
			s.logger.Error("Failed to save session",
				zap.Error(err),
				zap.Int64("user_id", msg.From.ID))
			Error(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		JSON(w, http.StatusOK, messageResponse{Status: "ok"})
	default:
		s.handleText(ctx, w, session, &msg)
	}
}

func (s *Server) handleCommand(ctx context.Context, w http.ResponseWriter, session *models.Session, msg *models.Message) {
	session.LastCmd = msg.Text
	if err := s.store.Save(ctx, msg.From.ID, session); err != nil {
		s.logger.Error("Failed to save session",
			zap.Error(err),
			zap.Int64("user_id", msg.From.ID))
		Error(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	switch msg.Text {
	case "/reset":
		err := s.store.Reset(ctx, msg.LogKey())
		if errors.Is(err, storage.ErrChatNotFound) {
			JSON(w, http.StatusOK, messageResponse{Status: "ok", Reply: "Nothing to reset."})
			return
		}
		if err != nil {
			s.logger.Error("Failed to reset chat",
				zap.Error(err),
				zap.Int64("chat_id", msg.LogKey()))
			Error(w, http.StatusInternalServerError, "reset failed")
			return
		}
		JSON(w, http.StatusOK, messageResponse{Status: "ok", Reply: "Chat history cleared."})
	case "/configure":
		JSON(w, http.StatusOK, messageResponse{Status: "ok", Reply: "Choose an option from the menu."})
	default:
		JSON(w, http.StatusOK, messageResponse{Status: "ok", Reply: "Hello! Send me a message and I will reply."})
	}
}

func (s *Server) handleText(ctx context.Context, w http.ResponseWriter, session *models.Session, msg *models.Message) {
	key := msg.LogKey()
	if err := s.store.Append(ctx, key, msg); err != nil {
		s.logger.Error("Failed to log message",
			zap.Error(err),
			zap.Int64("chat_id", key),
			zap.Int("message_id", msg.MessageID))
		Error(w, http.StatusInternalServerError, "message log unavailable")
		return
	}

	model := session.Model
	if model == "" {
		model = s.opts.DefaultModel
	}

	prompt, err := s.assembler.Assemble(ctx, key, model, s.opts.SystemPrompt)
	if err != nil {
		s.logger.Error("Failed to assemble history",
			zap.Error(err),
			zap.Int64("chat_id", key))
		Error(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	reply, err := s.completer.Complete(ctx, model, prompt)
	if err != nil {
		var cerr *llm.CompletionError
		if errors.As(err, &cerr) {
			// The inbound message stays logged; the user gets an apology
			// instead of an HTTP error.
			s.logger.Error("Completion failed",
				zap.Error(err),
				zap.Int64("chat_id", key),
				zap.String("model", model))
			JSON(w, http.StatusOK, messageResponse{Status: "ok", Reply: apologyReply})
			return
		}
		s.logger.Error("Completion call failed",
			zap.Error(err),
			zap.Int64("chat_id", key))
		Error(w, http.StatusInternalServerError, "completion unavailable")
		return
	}

	if err := s.store.Append(ctx, key, models.NewBotReply(msg, reply)); err != nil {
		s.logger.Error("Failed to log reply",
			zap.Error(err),
			zap.Int64("chat_id", key))
		Error(w, http.StatusInternalServerError, "message log unavailable")
		return
	}

	JSON(w, http.StatusOK, messageResponse{Status: "ok", Reply: reply})
}
