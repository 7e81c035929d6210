package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/leadflow/internal/conversation"
	"github.com/ashureev/leadflow/internal/domain"
	"github.com/ashureev/leadflow/internal/generator"
	"github.com/go-chi/chi/v5"
)

// ConversationHandler serves the visitor facing conversation endpoints.
type ConversationHandler struct {
	svc    *conversation.Service
	script *generator.Template
	limit  func(http.Handler) http.Handler
}

// NewConversationHandler creates a conversation handler. limit may be nil.
func NewConversationHandler(svc *conversation.Service, script *generator.Template, limit func(http.Handler) http.Handler) *ConversationHandler {
	return &ConversationHandler{svc: svc, script: script, limit: limit}
}

type respondRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type submitPhoneRequest struct {
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
}

type startResponse struct {
	SessionID      string `json:"session_id"`
	Response       string `json:"response"`
	MessageCount   int    `json:"message_count"`
	FlowCompleted  bool   `json:"flow_completed"`
	PhoneCollected bool   `json:"phone_collected"`
}

type respondResponse struct {
	Response       string      `json:"response"`
	MessageCount   int         `json:"message_count"`
	FlowCompleted  bool        `json:"flow_completed"`
	PhoneCollected bool        `json:"phone_collected"`
	CurrentStep    domain.Step `json:"current_step"`
}

type submitPhoneResponse struct {
	Message          string `json:"message"`
	AlreadyCollected bool   `json:"already_collected"`
	LawyersNotified  bool   `json:"lawyers_notified"`
}

type statusResponse struct {
	Exists          bool           `json:"exists"`
	SessionID       string         `json:"session_id,omitempty"`
	CurrentStep     domain.Step    `json:"current_step,omitempty"`
	FlowCompleted   bool           `json:"flow_completed"`
	PhoneCollected  bool           `json:"phone_collected"`
	LawyersNotified bool           `json:"lawyers_notified"`
	Answers         domain.Answers `json:"answers,omitempty"`
	MessageCount    int            `json:"message_count"`
	Score           *int           `json:"score,omitempty"`
}

// RegisterRoutes registers conversation routes.
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversation", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.limit != nil {
				r.Use(h.limit)
			}
			r.Post("/start", h.Start)
			r.Post("/respond", h.Respond)
			r.Post("/submit-phone", h.SubmitPhone)
		})
		r.Get("/status/{sessionID}", h.Status)
		r.Get("/flow", h.Flow)
		r.Post("/reset-session/{sessionID}", h.Reset)
	})
}

// Start opens a new session and returns the greeting.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Start(r.Context())
	if err != nil {
		slog.Error("Failed to start conversation", "error", err)
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, startResponse{
		SessionID:      res.SessionID,
		Response:       res.Response,
		MessageCount:   res.MessageCount,
		FlowCompleted:  res.FlowCompleted,
		PhoneCollected: res.PhoneCollected,
	})
}

// Respond records the visitor's answer for the current step.
func (h *ConversationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.svc.Respond(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if !errors.Is(err, conversation.ErrInvalidInput) && !errors.Is(err, conversation.ErrSessionNotFound) {
			slog.Error("Failed to process response", "error", err, "session_id", req.SessionID)
		}
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, respondResponse{
		Response:       res.Response,
		MessageCount:   res.MessageCount,
		FlowCompleted:  res.FlowCompleted,
		PhoneCollected: res.PhoneCollected,
		CurrentStep:    res.CurrentStep,
	})
}

// SubmitPhone collects the visitor's phone and triggers lawyer notification.
func (h *ConversationHandler) SubmitPhone(w http.ResponseWriter, r *http.Request) {
	var req submitPhoneRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.svc.SubmitPhone(r.Context(), req.SessionID, req.PhoneNumber)
	if err != nil {
		if !errors.Is(err, conversation.ErrInvalidInput) && !errors.Is(err, conversation.ErrSessionNotFound) {
			slog.Error("Failed to submit phone", "error", err, "session_id", req.SessionID)
		}
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, submitPhoneResponse{
		Message:          res.Message,
		AlreadyCollected: res.AlreadyCollected,
		LawyersNotified:  res.Notified,
	})
}

// Status returns the stored context of a session. Unknown sessions are
// reported with exists=false rather than 404.
func (h *ConversationHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, conversation.ErrSessionNotFound) {
		JSON(w, http.StatusOK, statusResponse{Exists: false})
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, statusResponse{
		Exists:          true,
		SessionID:       sess.ID,
		CurrentStep:     sess.Step,
		FlowCompleted:   sess.FlowCompleted,
		PhoneCollected:  sess.PhoneCollected,
		LawyersNotified: sess.LawyersNotified,
		Answers:         sess.Answers,
		MessageCount:    sess.MessageCount,
		Score:           sess.Score,
	})
}

// Flow lists the scripted steps in order.
func (h *ConversationHandler) Flow(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"steps": h.script.Script()})
}

// Reset deletes a session.
func (h *ConversationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.svc.Reset(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": id})
}
