package history

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/format37/panthera/internal/models"
	"github.com/format37/panthera/internal/storage"
)

// DefaultTokenBudget caps the estimated token cost of an assembled prompt.
const DefaultTokenBudget = 3000

// DefaultSystemPrompt is the persona preamble prepended to every prompt
// unless the caller supplies an override.
const DefaultSystemPrompt = "You are the chat member. Your username is assistant. " +
	"You need to start with 'Assistant:' before each of your messages."

// TokenCounter estimates the model-token cost of a serialized prompt.
type TokenCounter interface {
	Count(ctx context.Context, text, model string) (int, error)
}

// Assembler rebuilds a bounded conversation prompt from the message log,
// evicting messages that fall outside the token budget window.
type Assembler struct {
	log     storage.MessageLog
	counter TokenCounter
	budget  int
	logger  *zap.Logger
}

func New(log storage.MessageLog, counter TokenCounter, budget int, logger *zap.Logger) *Assembler {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Assembler{
		log:     log,
		counter: counter,
		budget:  budget,
		logger:  logger,
	}
}

// Assemble walks the chat log newest-first, accumulating turns until the
// serialized prompt's projected token count reaches the budget. Every
// message from the first overflow onward is deleted from the log. The
// returned prompt is oldest-first with the system preamble up front.
//
// The budget is checked against the accumulator before each candidate is
// added, so the newest message is always included even when it alone would
// exceed the budget.
func (a *Assembler) Assemble(ctx context.Context, chatID int64, model, systemPrompt string) ([]models.Turn, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	refs, err := a.log.List(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat %d: %w", chatID, err)
	}

	turns := []models.Turn{}
	limitReached := false
	for _, ref := range refs {
		if !limitReached {
			serialized, err := json.Marshal(turns)
			if err != nil {
				return nil, fmt.Errorf("serialize prompt: %w", err)
			}
			tokens, err := a.counter.Count(ctx, string(serialized), model)
			if err != nil {
				return nil, err
			}
			if tokens < a.budget {
				msg, err := a.log.Read(ctx, ref)
				if err != nil {
					return nil, err
				}
				turns = append(turns, turnFor(msg))
				continue
			}
			limitReached = true
			a.logger.Info("Token budget reached, evicting older messages",
				zap.Int64("chat_id", chatID),
				zap.Int("tokens", tokens),
				zap.Int("budget", a.budget))
		}
		if err := a.log.Remove(ctx, ref); err != nil {
			return nil, fmt.Errorf("evict message %d/%d: %w", ref.Date, ref.MessageID, err)
		}
	}

	// The accumulator is newest-first; the model wants oldest-first.
	prompt := make([]models.Turn, 0, len(turns)+1)
	prompt = append(prompt, models.Turn{Role: models.RoleSystem, Content: systemPrompt})
	for i := len(turns) - 1; i >= 0; i-- {
		prompt = append(prompt, turns[i])
	}
	return prompt, nil
}

func turnFor(msg *models.Message) models.Turn {
	if msg.IsFromBot() {
		return models.Turn{Role: models.RoleAssistant, Content: msg.Text}
	}
	return models.Turn{Role: models.RoleUser, Content: msg.SenderName() + ": " + msg.Text}
}
