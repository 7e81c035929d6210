// Package conversation implements the lead qualification state machine.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/ashureev/leadflow/internal/transcript"
	"github.com/google/uuid"
)

const (
	defaultGeneratorTimeout = 15 * time.Second
	defaultNotifierTimeout  = 15 * time.Second
	defaultNotifyThreshold  = 70
)

// SessionStore persists sessions. GetSession returns (nil, nil) when the
// session does not exist.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SaveSession(ctx context.Context, session *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// Generator produces the prompt the visitor must answer at step.
type Generator interface {
	Generate(ctx context.Context, step domain.Step, answers domain.Answers) (string, error)
}

// Notifier delivers a collected lead to a human reviewer.
type Notifier interface {
	Notify(ctx context.Context, lead domain.LeadSnapshot) error
}

// Qualifier decides whether a lead is qualified and how urgent it is.
type Qualifier interface {
	Decide(ctx context.Context, lead domain.LeadSnapshot) (domain.LeadDecision, error)
}

// Options tunes a Service.
type Options struct {
	GeneratorTimeout time.Duration
	NotifierTimeout  time.Duration
	NotifyThreshold  int
	Qualifier        Qualifier
	Transcript       transcript.Logger
	Logger           *slog.Logger
	Now              func() time.Time
	NewID            func() string
}

// Service is the conversation orchestrator. It is the only writer of session state.
type Service struct {
	store     SessionStore
	generator Generator
	notifier  Notifier
	qualifier Qualifier
	log       transcript.Logger
	logger    *slog.Logger
	locks     *sessionLocks

	generatorTimeout time.Duration
	notifierTimeout  time.Duration
	threshold        int
	now              func() time.Time
	newID            func() string
}

// StartResult is returned by Start.
type StartResult struct {
	SessionID      string
	Response       string
	MessageCount   int
	FlowCompleted  bool
	PhoneCollected bool
}

// RespondResult is returned by Respond.
type RespondResult struct {
	Response       string
	MessageCount   int
	FlowCompleted  bool
	PhoneCollected bool
	CurrentStep    domain.Step
}

// SubmitPhoneResult is returned by SubmitPhone.
type SubmitPhoneResult struct {
	Message          string
	AlreadyCollected bool
	Notified         bool
}

// NewService wires the orchestrator.
func NewService(store SessionStore, generator Generator, notifier Notifier, opts Options) *Service {
	s := &Service{
		store:            store,
		generator:        generator,
		notifier:         notifier,
		qualifier:        opts.Qualifier,
		log:              opts.Transcript,
		logger:           opts.Logger,
		locks:            newSessionLocks(),
		generatorTimeout: opts.GeneratorTimeout,
		notifierTimeout:  opts.NotifierTimeout,
		threshold:        opts.NotifyThreshold,
		now:              opts.Now,
		newID:            opts.NewID,
	}
	if s.log == nil {
		s.log = transcript.NopLogger{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.generatorTimeout <= 0 {
		s.generatorTimeout = defaultGeneratorTimeout
	}
	if s.notifierTimeout <= 0 {
		s.notifierTimeout = defaultNotifierTimeout
	}
	if s.threshold <= 0 {
		s.threshold = defaultNotifyThreshold
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Start creates a new session, produces the greeting and moves to ASK_NAME.
func (s *Service) Start(ctx context.Context) (*StartResult, error) {
	sess := domain.NewSession(s.newID(), s.now())
	greeting := s.prompt(ctx, sess.ID, domain.StepGreeting, sess.Answers)
	sess.Step = domain.StepGreeting.Next()

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, storeError("start", err)
	}
	s.record(sess.ID, transcript.DirectionOutbound, "greeting", domain.StepGreeting, greeting)
	s.logger.Info("Conversation started", "session_id", sess.ID)

	return &StartResult{
		SessionID:      sess.ID,
		Response:       greeting,
		MessageCount:   sess.MessageCount,
		FlowCompleted:  sess.FlowCompleted,
		PhoneCollected: sess.PhoneCollected,
	}, nil
}

// Respond records the visitor's answer for the current step and returns the
// next prompt. Empty text fails with an *InputError and changes nothing.
func (s *Service) Respond(ctx context.Context, sessionID, text string) (*RespondResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !IsNonEmpty(text) {
		return nil, &InputError{
			Field:  "message",
			Reason: "message is empty",
			Prompt: s.prompt(ctx, current.ID, current.Step, current.Answers),
		}
	}

	if current.FlowCompleted {
		return s.followUp(ctx, current, text)
	}

	next := current.Clone()
	if key, ok := next.Step.AnswerKey(); ok {
		next.Answers[key] = text
	}
	next.Step = next.Step.Next()
	if next.Step == domain.StepAwaitingPhone && next.Answers.Complete() {
		score := Score(next.Answers)
		next.FlowCompleted = true
		next.Score = &score
	}
	next.MessageCount++
	next.UpdatedAt = s.now()

	if err := s.store.SaveSession(ctx, next); err != nil {
		return nil, storeError("respond", err)
	}
	s.record(next.ID, transcript.DirectionInbound, "visitor_message", current.Step, text)
	if next.FlowCompleted {
		s.logger.Info("Qualification flow completed", "session_id", next.ID, "score", *next.Score)
	}

	response := s.prompt(ctx, next.ID, next.Step, next.Answers)
	s.record(next.ID, transcript.DirectionOutbound, "prompt", next.Step, response)

	return respondResult(next, response), nil
}

// followUp handles text received after the flow completed: the text is kept
// as a follow-up note while step, answers and score stay frozen.
func (s *Service) followUp(ctx context.Context, current *domain.Session, text string) (*RespondResult, error) {
	next := current.Clone()
	next.FollowUps = append(next.FollowUps, text)
	next.MessageCount++
	next.UpdatedAt = s.now()

	if err := s.store.SaveSession(ctx, next); err != nil {
		return nil, storeError("follow-up", err)
	}
	s.record(next.ID, transcript.DirectionInbound, "follow_up", next.Step, text)

	response := next.Confirmation
	if next.Step != domain.StepDone || response == "" {
		response = s.prompt(ctx, next.ID, next.Step, next.Answers)
	}
	s.record(next.ID, transcript.DirectionOutbound, "prompt", next.Step, response)
	return respondResult(next, response), nil
}

// SubmitPhone records the visitor's phone and notifies reviewers once.
// Repeating the call with a valid phone after success returns the stored
// confirmation; a malformed phone is always rejected.
func (s *Service) SubmitPhone(ctx context.Context, sessionID, phone string) (*SubmitPhoneResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !current.FlowCompleted {
		return nil, &InputError{
			Field:  "phone_number",
			Reason: "qualification flow is not complete",
			Prompt: s.prompt(ctx, current.ID, current.Step, current.Answers),
		}
	}
	if !IsValidPhone(phone) {
		return nil, &InputError{
			Field:  "phone_number",
			Reason: "phone must have 10 to 13 digits",
			Prompt: s.prompt(ctx, current.ID, domain.StepAwaitingPhone, current.Answers),
		}
	}
	if current.PhoneCollected {
		return &SubmitPhoneResult{
			Message:          current.Confirmation,
			AlreadyCollected: true,
			Notified:         current.LawyersNotified,
		}, nil
	}

	next := current.Clone()
	next.Phone = NormalizePhone(phone)
	next.PhoneCollected = true
	next.Step = domain.StepDone
	next.MessageCount++
	next.UpdatedAt = s.now()
	next.Confirmation = s.prompt(ctx, next.ID, domain.StepDone, next.Answers)

	if err := s.store.SaveSession(ctx, next); err != nil {
		return nil, storeError("submit phone", err)
	}
	s.record(next.ID, transcript.DirectionInbound, "phone_submitted", domain.StepAwaitingPhone, next.Phone)
	s.record(next.ID, transcript.DirectionOutbound, "confirmation", domain.StepDone, next.Confirmation)

	if err := s.notify(ctx, next); err != nil {
		next.NotifyError = err.Error()
		s.logger.Error("Lead notification failed", "session_id", next.ID, "error", err)
	} else {
		next.LawyersNotified = true
		next.NotifyError = ""
	}
	// The phone is already durable; a failure here only loses the notify flag.
	if err := s.store.SaveSession(ctx, next); err != nil {
		s.logger.Error("Failed to persist notification outcome", "session_id", next.ID, "error", err)
	}

	return &SubmitPhoneResult{
		Message:  next.Confirmation,
		Notified: next.LawyersNotified,
	}, nil
}

// Status returns a copy of the stored session.
func (s *Service) Status(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.load(ctx, sessionID)
}

// Reset removes a session from the store.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err := s.load(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return storeError("reset", err)
	}
	s.logger.Info("Session reset", "session_id", sessionID)
	return nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storeError("load session", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// prompt asks the generator for the step prompt and degrades to the static
// fallback on error or timeout.
func (s *Service) prompt(ctx context.Context, sessionID string, step domain.Step, answers domain.Answers) string {
	genCtx, cancel := context.WithTimeout(ctx, s.generatorTimeout)
	defer cancel()

	text, err := s.generator.Generate(genCtx, step, answers)
	if err == nil && IsNonEmpty(text) {
		return text
	}
	if err == nil {
		err = errors.New("empty response")
	}
	s.logger.Warn("Using fallback prompt",
		"session_id", sessionID,
		"step", step,
		"error", errors.Join(ErrGeneratorUnavailable, err))
	return FallbackPrompt(step)
}

func (s *Service) notify(ctx context.Context, sess *domain.Session) error {
	lead := sess.Snapshot()
	lead.Decision = s.decide(ctx, lead)

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifierTimeout)
	defer cancel()

	if err := s.notifier.Notify(notifyCtx, lead); err != nil {
		return errors.Join(ErrNotifierFailure, err)
	}
	s.logger.Info("Lead notified",
		"session_id", sess.ID,
		"score", lead.Score,
		"qualified", lead.Decision.Qualified,
		"priority", lead.Decision.Priority)
	return nil
}

func (s *Service) decide(ctx context.Context, lead domain.LeadSnapshot) domain.LeadDecision {
	fallback := domain.LeadDecision{
		Qualified: lead.Score >= s.threshold,
		Priority:  "normal",
		Area:      "other",
	}
	if s.qualifier == nil {
		return fallback
	}
	decision, err := s.qualifier.Decide(ctx, lead)
	if err != nil {
		s.logger.Warn("Lead policy evaluation failed, using score threshold", "session_id", lead.SessionID, "error", err)
		return fallback
	}
	return decision
}

func (s *Service) record(sessionID, direction, eventType string, step domain.Step, content string) {
	s.log.Log(transcript.Event{
		SessionID:  sessionID,
		Direction:  direction,
		EventType:  eventType,
		Step:       string(step),
		ContentRaw: content,
	})
}

func respondResult(sess *domain.Session, response string) *RespondResult {
	return &RespondResult{
		Response:       response,
		MessageCount:   sess.MessageCount,
		FlowCompleted:  sess.FlowCompleted,
		PhoneCollected: sess.PhoneCollected,
		CurrentStep:    sess.Step,
	}
}
