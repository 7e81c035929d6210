package domain

import (
	"maps"
	"strings"
	"time"
)

// Step is a position in the qualification flow.
type Step string

// Qualification flow steps, in order.
const (
	StepGreeting         Step = "GREETING"
	StepAskName          Step = "ASK_NAME"
	StepAskContactReason Step = "ASK_CONTACT_REASON"
	StepAskLegalArea     Step = "ASK_LEGAL_AREA"
	StepAskDetails       Step = "ASK_DETAILS"
	StepAwaitingPhone    Step = "AWAITING_PHONE"
	StepDone             Step = "DONE"
)

// Answer keys collected by the flow.
const (
	AnswerName          = "name"
	AnswerContactReason = "contact_reason"
	AnswerLegalArea     = "legal_area"
	AnswerDetails       = "details"
)

var flow = []Step{
	StepGreeting,
	StepAskName,
	StepAskContactReason,
	StepAskLegalArea,
	StepAskDetails,
	StepAwaitingPhone,
	StepDone,
}

var stepAnswerKeys = map[Step]string{
	StepAskName:          AnswerName,
	StepAskContactReason: AnswerContactReason,
	StepAskLegalArea:     AnswerLegalArea,
	StepAskDetails:       AnswerDetails,
}

// RequiredAnswers lists the keys that must be present before the flow completes.
var RequiredAnswers = []string{AnswerName, AnswerContactReason, AnswerLegalArea, AnswerDetails}

// Flow returns the ordered list of steps.
func Flow() []Step {
	return append([]Step(nil), flow...)
}

// Index returns the position of the step in the flow, or -1 if unknown.
func (s Step) Index() int {
	for i, st := range flow {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s.Index() >= 0 }

// Next returns the step following s. DONE is terminal and returns itself.
func (s Step) Next() Step {
	i := s.Index()
	if i < 0 || i == len(flow)-1 {
		return s
	}
	return flow[i+1]
}

// AnswerKey returns the answer key collected while in step s.
func (s Step) AnswerKey() (string, bool) {
	k, ok := stepAnswerKeys[s]
	return k, ok
}

// Answers maps answer keys to the visitor's text.
type Answers map[string]string

// Has reports whether key holds a non-blank answer.
func (a Answers) Has(key string) bool {
	return strings.TrimSpace(a[key]) != ""
}

// Complete reports whether every required answer is present.
func (a Answers) Complete() bool {
	for _, k := range RequiredAnswers {
		if !a.Has(k) {
			return false
		}
	}
	return true
}

// FirstName returns the first word of the name answer.
func (a Answers) FirstName() string {
	fields := strings.Fields(a[AnswerName])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Session is one visitor's conversation state.
type Session struct {
	ID              string
	Step            Step
	Answers         Answers
	FollowUps       []string
	MessageCount    int
	FlowCompleted   bool
	Phone           string
	PhoneCollected  bool
	Score           *int
	Confirmation    string
	LawyersNotified bool
	NotifyError     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSession returns a session in the GREETING step.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Step:      StepGreeting,
		Answers:   Answers{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Answers = maps.Clone(s.Answers)
	if c.Answers == nil {
		c.Answers = Answers{}
	}
	c.FollowUps = append([]string(nil), s.FollowUps...)
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	return &c
}

// Snapshot builds the notification payload for a completed session.
func (s *Session) Snapshot() LeadSnapshot {
	snap := LeadSnapshot{
		SessionID:    s.ID,
		Answers:      maps.Clone(s.Answers),
		Phone:        s.Phone,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		CollectedAt:  s.UpdatedAt,
	}
	if s.Score != nil {
		snap.Score = *s.Score
	}
	return snap
}
