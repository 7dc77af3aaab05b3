package menu

import (
	"encoding/json"
	"fmt"
	"os"
)

// MessageType classifies inbound text for the request handler.
type MessageType string

const (
	TypeCommand MessageType = "cmd"
	TypeButton  MessageType = "button"
	TypeText    MessageType = "text"
)

var commands = map[string]struct{}{
	"/start":     {},
	"/configure": {},
	"/reset":     {},
}

type section struct {
	Buttons []button `json:"buttons"`
}

type button struct {
	Text string `json:"text"`
}

// Menu classifies inbound text against the button layout in menu.json.
// Classification is a pure lookup; the file is read once at startup.
type Menu struct {
	labels map[string]struct{}
}

func Load(path string) (*Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu: %w", err)
	}
	var sections map[string]section
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse menu: %w", err)
	}

	labels := make(map[string]struct{}, len(sections))
	for key, s := range sections {
		labels[key] = struct{}{}
		for _, b := range s.Buttons {
			labels[b.Text] = struct{}{}
		}
	}
	return &Menu{labels: labels}, nil
}

func (m *Menu) Classify(text string) MessageType {
	if _, ok := commands[text]; ok {
		return TypeCommand
	}
	if _, ok := m.labels[text]; ok {
		return TypeButton
	}
	return TypeText
}
