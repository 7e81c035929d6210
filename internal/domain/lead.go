package domain

import "time"

// LeadDecision is the qualification verdict attached to a lead.
type LeadDecision struct {
	Qualified bool   `json:"qualified"`
	Priority  string `json:"priority"`
	Area      string `json:"area"`
}

// LeadSnapshot is the full record handed to notifiers once a phone is collected.
type LeadSnapshot struct {
	SessionID    string            `json:"session_id"`
	Answers      map[string]string `json:"answers"`
	Phone        string            `json:"phone"`
	Score        int               `json:"score"`
	MessageCount int               `json:"message_count"`
	Decision     LeadDecision      `json:"decision"`
	CreatedAt    time.Time         `json:"created_at"`
	CollectedAt  time.Time         `json:"collected_at"`
}

// Name returns the visitor's full name, or "Cliente" when missing.
func (l LeadSnapshot) Name() string {
	if n := l.Answers[AnswerName]; n != "" {
		return n
	}
	return "Cliente"
}

// FirstName returns the first word of the visitor's name.
func (l LeadSnapshot) FirstName() string {
	if first := Answers(l.Answers).FirstName(); first != "" {
		return first
	}
	return "Cliente"
}
