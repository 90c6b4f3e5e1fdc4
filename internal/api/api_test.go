package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dorshemer/yoman/internal/messaging"
	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/store"
)

type stubMessaging struct {
	sent    []string
	sendErr error
}

func (m *stubMessaging) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return messaging.CanonicalizePhone(recipient)
}

func (m *stubMessaging) SendMessage(ctx context.Context, to, body string) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, body)
	return "msg-1", nil
}

func (m *stubMessaging) ReactToLastMessage(ctx context.Context, userID, emoji string) error {
	return nil
}

func (m *stubMessaging) Start(ctx context.Context) error   { return nil }
func (m *stubMessaging) Stop() error                       { return nil }
func (m *stubMessaging) Receipts() <-chan models.Receipt   { return nil }
func (m *stubMessaging) Responses() <-chan models.Response { return nil }

func newTestServer() (*Server, *store.InMemoryStore, *stubMessaging) {
	st := store.NewInMemoryStore()
	msg := &stubMessaging{}
	return NewServer(st, msg), st, msg
}

func TestHealthHandler(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("health returned %d, want 200", rr.Code)
	}
}

func TestSendHandler(t *testing.T) {
	s, _, msg := newTestServer()
	body := bytes.NewBufferString(`{"to":"+972501234567","body":"שלום"}`)
	req := httptest.NewRequest(http.MethodPost, "/send", body)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("send returned %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if len(msg.sent) != 1 || msg.sent[0] != "שלום" {
		t.Errorf("sent messages = %v, want [שלום]", msg.sent)
	}
}

func TestSendHandlerRejectsBadRecipient(t *testing.T) {
	s, _, _ := newTestServer()
	body := bytes.NewBufferString(`{"to":"abc","body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/send", body)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("send returned %d, want 400", rr.Code)
	}
}

func TestSessionHandlers(t *testing.T) {
	s, st, _ := newTestServer()
	sess := models.NewSession("972501234567")
	if err := st.SaveSession(*sess, store.DefaultSessionTTL); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/972501234567", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get session returned %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status string          `json:"status"`
		Result *models.Session `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Result == nil || resp.Result.UserID != "972501234567" {
		t.Errorf("unexpected session payload: %+v", resp.Result)
	}

	req = httptest.NewRequest(http.MethodDelete, "/sessions/972501234567", nil)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete session returned %d, want 200", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/972501234567", nil)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted session returned %d, want 404", rr.Code)
	}
}

func TestMismatchesHandler(t *testing.T) {
	s, st, _ := newTestServer()
	if err := st.RecordMismatch(store.Mismatch{UserID: "972501234567", RawText: "תזכיר לי", Intent: "unknown", Confidence: 0.3}); err != nil {
		t.Fatalf("seed mismatch: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/mismatches?limit=10", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("mismatches returned %d, want 200", rr.Code)
	}
	var resp struct {
		Result []store.Mismatch `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].RawText != "תזכיר לי" {
		t.Errorf("unexpected mismatches: %+v", resp.Result)
	}

	req = httptest.NewRequest(http.MethodGet, "/mismatches?limit=0", nil)
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("mismatches with bad limit returned %d, want 400", rr.Code)
	}
}
