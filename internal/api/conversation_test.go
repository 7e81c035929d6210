package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/leadflow/internal/conversation"
	"github.com/ashureev/leadflow/internal/domain"
	"github.com/ashureev/leadflow/internal/generator"
	"github.com/ashureev/leadflow/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	leads []domain.LeadSnapshot
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, lead domain.LeadSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, lead)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.leads)
}

type testServer struct {
	*httptest.Server
	store    *store.MemoryStore
	notifier *recordingNotifier
}

func newTestServer(t *testing.T, limit func(http.Handler) http.Handler) *testServer {
	t.Helper()

	repo := store.NewMemory()
	n := &recordingNotifier{}
	tmpl := generator.NewTemplate(time.UTC)
	svc := conversation.NewService(repo, tmpl, n, conversation.Options{})

	r := chi.NewRouter()
	NewConversationHandler(svc, tmpl, limit).RegisterRoutes(r)
	h := NewHealthHandler(repo, nil, nil, time.Second)
	r.Get("/health", h.Live)
	r.Get("/conversation/service-status", h.ServiceStatus)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: repo, notifier: n}
}

func (s *testServer) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(s.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestConversationEndToEnd(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, start := srv.post(t, "/conversation/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := start["session_id"].(string)
	require.NotEmpty(t, id)
	assert.NotEmpty(t, start["response"])
	assert.Equal(t, false, start["flow_completed"])

	answers := []string{
		"Maria Silva",
		"Quero uma consulta",
		"Direito penal",
		"Fui acusada injustamente de um crime que não cometi e preciso de defesa.",
	}
	var last map[string]any
	for _, a := range answers {
		resp, last = srv.post(t, "/conversation/respond", respondRequest{SessionID: id, Message: a})
		require.Equal(t, http.StatusOK, resp.StatusCode, last)
	}
	assert.Equal(t, true, last["flow_completed"])
	assert.Equal(t, string(domain.StepAwaitingPhone), last["current_step"])
	assert.EqualValues(t, 4, last["message_count"])

	resp, phone := srv.post(t, "/conversation/submit-phone", submitPhoneRequest{SessionID: id, PhoneNumber: "(11) 98765-4321"})
	require.Equal(t, http.StatusOK, resp.StatusCode, phone)
	assert.Contains(t, phone["message"], "Maria")
	assert.Equal(t, true, phone["lawyers_notified"])
	assert.Equal(t, 1, srv.notifier.count())

	// Retrying is idempotent.
	resp, again := srv.post(t, "/conversation/submit-phone", submitPhoneRequest{SessionID: id, PhoneNumber: "(11) 98765-4321"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, phone["message"], again["message"])
	assert.Equal(t, true, again["already_collected"])
	assert.Equal(t, 1, srv.notifier.count())

	resp, status := srv.get(t, "/conversation/status/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, status["exists"])
	assert.Equal(t, string(domain.StepDone), status["current_step"])
	assert.Equal(t, true, status["phone_collected"])
	assert.NotNil(t, status["score"])
}

func TestRespondErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, body := srv.post(t, "/conversation/respond", respondRequest{SessionID: "missing", Message: "oi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeSessionNotFound, body["code"])

	_, start := srv.post(t, "/conversation/start", nil)
	id := start["session_id"].(string)

	resp, body = srv.post(t, "/conversation/respond", respondRequest{SessionID: id, Message: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, CodeInvalidInput, body["code"])
	assert.NotEmpty(t, body["prompt"])

	sess, err := srv.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAskName, sess.Step)
	assert.Equal(t, 0, sess.MessageCount)

	httpResp, err := http.Post(srv.URL+"/conversation/respond", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}

func TestSubmitPhoneErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	_, start := srv.post(t, "/conversation/start", nil)
	id := start["session_id"].(string)

	resp, body := srv.post(t, "/conversation/submit-phone", submitPhoneRequest{SessionID: id, PhoneNumber: "11987654321"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, CodeInvalidInput, body["code"])

	for _, a := range []string{"Ana", "consulta", "trabalhista", "demissão sem justa causa"} {
		srv.post(t, "/conversation/respond", respondRequest{SessionID: id, Message: a})
	}

	resp, body = srv.post(t, "/conversation/submit-phone", submitPhoneRequest{SessionID: id, PhoneNumber: "12345"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, CodeInvalidInput, body["code"])
	assert.Equal(t, 0, srv.notifier.count())
}

func TestNotifierFailureKeepsPhone(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	srv.notifier.err = errors.New("bot offline")

	_, start := srv.post(t, "/conversation/start", nil)
	id := start["session_id"].(string)
	for _, a := range []string{"Ana Souza", "consulta", "saúde", "plano negou cirurgia"} {
		srv.post(t, "/conversation/respond", respondRequest{SessionID: id, Message: a})
	}

	resp, body := srv.post(t, "/conversation/submit-phone", submitPhoneRequest{SessionID: id, PhoneNumber: "11987654321"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["lawyers_notified"])

	_, status := srv.get(t, "/conversation/status/"+id)
	assert.Equal(t, true, status["phone_collected"])
	assert.Equal(t, false, status["lawyers_notified"])
}

func TestStatusUnknownSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, body := srv.get(t, "/conversation/status/nope")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["exists"])
}

func TestFlowAndReset(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, flow := srv.get(t, "/conversation/flow")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	steps, ok := flow["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, len(domain.Flow()))

	_, start := srv.post(t, "/conversation/start", nil)
	id := start["session_id"].(string)

	resp, _ = srv.post(t, "/conversation/reset-session/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := srv.post(t, "/conversation/reset-session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeSessionNotFound, body["code"])
}

func TestRateLimitedStart(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, time.Minute)
	t.Cleanup(rl.Stop)
	srv := newTestServer(t, rl.Middleware)

	for i := 0; i < 2; i++ {
		resp, _ := srv.post(t, "/conversation/start", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := srv.post(t, "/conversation/start", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, CodeRateLimited, body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Read-only routes are not limited.
	resp, _ = srv.get(t, "/conversation/flow")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
