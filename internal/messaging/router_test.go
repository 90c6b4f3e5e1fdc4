package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

type fakeService struct {
	responses chan models.Response
	receipts  chan models.Receipt
}

func newFakeService() *fakeService {
	return &fakeService{
		responses: make(chan models.Response, DefaultChannelBufferSize),
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
	}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

func (f *fakeService) SendMessage(ctx context.Context, to, body string) (string, error) {
	return "sid", nil
}

func (f *fakeService) ReactToLastMessage(ctx context.Context, userID, emoji string) error {
	return nil
}

func (f *fakeService) Start(ctx context.Context) error { return nil }

func (f *fakeService) Stop() error {
	close(f.responses)
	close(f.receipts)
	return nil
}

func (f *fakeService) Receipts() <-chan models.Receipt   { return f.receipts }
func (f *fakeService) Responses() <-chan models.Response { return f.responses }

type recordingHandler struct {
	mu   sync.Mutex
	got  map[string][]string
	done chan struct{}
	want int
}

func newRecordingHandler(want int) *recordingHandler {
	return &recordingHandler{got: make(map[string][]string), done: make(chan struct{}, want), want: want}
}

func (h *recordingHandler) HandleMessage(ctx context.Context, userID, text string) error {
	h.mu.Lock()
	h.got[userID] = append(h.got[userID], text)
	h.mu.Unlock()
	h.done <- struct{}{}
	return nil
}

func (h *recordingHandler) wait(t *testing.T) {
	t.Helper()
	for i := 0; i < h.want; i++ {
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler saw %d messages, want %d", i, h.want)
		}
	}
}

func TestRouterPreservesPerUserOrder(t *testing.T) {
	svc := newFakeService()
	h := newRecordingHandler(4)
	r := NewRouter(svc, h)
	r.Start(context.Background())

	svc.responses <- models.Response{From: "+972-50-000-0001", Body: "a"}
	svc.responses <- models.Response{From: "972500000001", Body: "b"}
	svc.responses <- models.Response{From: "972500000002", Body: "x"}
	svc.responses <- models.Response{From: "972500000001", Body: "c"}

	h.wait(t)
	svc.Stop()
	r.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	got := h.got["972500000001"]
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("user 1 messages = %v, want [a b c]", got)
	}
	if len(h.got["972500000002"]) != 1 {
		t.Errorf("user 2 messages = %v, want [x]", h.got["972500000002"])
	}
}

func TestRouterDropsInvalidSender(t *testing.T) {
	svc := newFakeService()
	h := newRecordingHandler(1)
	r := NewRouter(svc, h)
	r.Start(context.Background())

	svc.responses <- models.Response{From: "abc", Body: "junk"}
	svc.responses <- models.Response{From: "972500000001", Body: "ok"}

	h.wait(t)
	svc.Stop()
	r.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.got) != 1 {
		t.Errorf("got messages for %d users, want 1", len(h.got))
	}
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+972501234567", "972501234567", false},
		{"whatsapp:+972501234567", "972501234567", false},
		{"972-50-123-4567", "972501234567", false},
		{"123", "", true},
		{"not a number", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
