package models

import "time"

// Session is the per-user bot state, one JSON document per user id,
// distinct from the conversation content itself.
type Session struct {
	LastCmd string           `json:"last_cmd"`
	Model   string           `json:"model"`
	Topics  map[string]Topic `json:"topics"`
}

type Topic struct {
	Evaluations []Evaluation `json:"evaluations"`
}

type Evaluation struct {
	Date  int64 `json:"date"`
	Value int   `json:"value"`
}

// AddEvaluation appends a dated evaluation to the named topic, creating the
// topic (and the topics map) on first use.
func (s *Session) AddEvaluation(topic string, value int) {
	if s.Topics == nil {
		s.Topics = make(map[string]Topic)
	}
	t := s.Topics[topic]
	t.Evaluations = append(t.Evaluations, Evaluation{Date: time.Now().Unix(), Value: value})
	s.Topics[topic] = t
}

// Clone returns a deep copy, so a session materialized from the shared
// default template can be mutated freely.
func (s *Session) Clone() *Session {
	clone := &Session{LastCmd: s.LastCmd, Model: s.Model}
	if s.Topics != nil {
		clone.Topics = make(map[string]Topic, len(s.Topics))
		for name, t := range s.Topics {
			evals := make([]Evaluation, len(t.Evaluations))
			copy(evals, t.Evaluations)
			clone.Topics[name] = Topic{Evaluations: evals}
		}
	}
	return clone
}
