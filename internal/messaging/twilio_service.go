package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/dorshemer/yoman/internal/models"
)

// TwilioService implements Service over the Twilio WhatsApp Business API.
// Inbound messages and status callbacks arrive over HTTP webhooks; mount
// WebhookHandler and StatusCallbackHandler on the API router.
type TwilioService struct {
	client *twilio.RestClient
	from   string

	receipts  chan models.Receipt
	responses chan models.Response

	mu      sync.Mutex
	stopped bool
}

// TwilioOpts holds configuration options for the Twilio service.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio service.
type TwilioOption func(*TwilioOpts)

// WithTwilioCredentials sets the Twilio account SID and auth token.
func WithTwilioCredentials(sid, token string) TwilioOption {
	return func(o *TwilioOpts) {
		o.AccountSID = sid
		o.AuthToken = token
	}
}

// WithTwilioFromNumber sets the WhatsApp-enabled sender number.
func WithTwilioFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// NewTwilioService creates a Twilio-backed messaging service.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials are required")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{
		client:    client,
		from:      cfg.FromNumber,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient normalizes a recipient to digits-only form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp message through Twilio and returns its SID.
func (s *TwilioService) SendMessage(ctx context.Context, to, body string) (string, error) {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom("whatsapp:" + s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("sending twilio message to %s: %w", canonical, err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioService.SendMessage: message sent", "to", canonical, "sid", sid)
	return sid, nil
}

// ReactToLastMessage is a no-op: the Twilio WhatsApp API does not expose
// message reactions.
func (s *TwilioService) ReactToLastMessage(ctx context.Context, userID, emoji string) error {
	slog.Debug("TwilioService.ReactToLastMessage: reactions unsupported, skipping", "userID", userID)
	return nil
}

// Start is a no-op: Twilio delivers events over HTTP webhooks.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Info("TwilioService.Start: awaiting webhook events", "from", s.from)
	return nil
}

// Stop closes the event channels.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.receipts)
	close(s.responses)
	slog.Info("TwilioService.Stop: service stopped")
	return nil
}

// Receipts returns the channel of delivery status updates.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel of inbound user messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// WebhookHandler accepts Twilio inbound message callbacks and forwards them
// as responses.
func (s *TwilioService) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		from := r.FormValue("From")
		body := r.FormValue("Body")
		if from == "" || body == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		canonical, err := s.ValidateAndCanonicalizeRecipient(from)
		if err != nil {
			slog.Warn("TwilioService.WebhookHandler: invalid sender", "from", from, "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		s.emitResponse(models.Response{From: canonical, Body: body, Time: time.Now().Unix()})
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, "<Response></Response>")
	}
}

// StatusCallbackHandler accepts Twilio delivery status callbacks and forwards
// them as receipts.
func (s *TwilioService) StatusCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		to := r.FormValue("To")
		status := r.FormValue("MessageStatus")
		canonical, err := s.ValidateAndCanonicalizeRecipient(to)
		if err == nil && status != "" {
			s.emitReceipt(models.Receipt{To: canonical, Status: status, Time: time.Now().Unix()})
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *TwilioService) emitResponse(resp models.Response) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.responses <- resp:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService.emitResponse: response channel full, dropping", "from", resp.From)
	}
}

func (s *TwilioService) emitReceipt(rcpt models.Receipt) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.receipts <- rcpt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService.emitReceipt: receipt channel full, dropping", "to", rcpt.To)
	}
}
