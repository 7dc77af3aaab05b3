package models

// Prompt turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged entry in an assembled prompt. Prompts are built
// transiently per request and never persisted.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
