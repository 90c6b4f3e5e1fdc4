package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/whatsapp"
)

// WhatsAppService adapts the WhatsApp client to the Service interface.
type WhatsAppService struct {
	client    *whatsapp.Client
	receipts  chan models.Receipt
	responses chan models.Response

	mu      sync.Mutex
	stopped bool
}

// NewWhatsAppService creates a messaging service backed by the WhatsApp client.
func NewWhatsAppService(client *whatsapp.Client) *WhatsAppService {
	return &WhatsAppService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient normalizes a recipient to digits-only form.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp text message and returns its message ID.
func (s *WhatsAppService) SendMessage(ctx context.Context, to, body string) (string, error) {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return "", err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// ReactToLastMessage reacts to the user's most recent inbound message.
func (s *WhatsAppService) ReactToLastMessage(ctx context.Context, userID, emoji string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(userID)
	if err != nil {
		return err
	}
	return s.client.ReactToLastMessage(ctx, canonical, emoji)
}

// Start registers the event handler that feeds the receipt and response
// channels.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.client == nil || s.client.GetClient() == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	s.client.GetClient().AddEventHandler(s.handleEvent)
	slog.Info("WhatsAppService.Start: event handler registered")
	return nil
}

// Stop disconnects the client and closes the event channels.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.client.Disconnect()
	close(s.receipts)
	close(s.responses)
	slog.Info("WhatsAppService.Stop: service stopped")
	return nil
}

// Receipts returns the channel of delivery status updates.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel of inbound user messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Message:
		if e.Info.IsFromMe {
			return
		}
		body := e.Message.GetConversation()
		if body == "" && e.Message.GetExtendedTextMessage() != nil {
			body = e.Message.GetExtendedTextMessage().GetText()
		}
		if body == "" {
			return
		}
		s.emitResponse(models.Response{
			From: e.Info.Sender.User,
			Body: body,
			Time: e.Info.Timestamp.Unix(),
		})
	case *events.Receipt:
		status := "delivered"
		if e.Type == "read" {
			status = "read"
		}
		s.emitReceipt(models.Receipt{
			To:     e.MessageSource.Sender.User,
			Status: status,
			Time:   e.Timestamp.Unix(),
		})
	}
}

// emitResponse forwards an inbound message without blocking the whatsmeow
// event loop indefinitely.
func (s *WhatsAppService) emitResponse(resp models.Response) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.responses <- resp:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService.emitResponse: response channel full, dropping", "from", resp.From)
	}
}

func (s *WhatsAppService) emitReceipt(rcpt models.Receipt) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.receipts <- rcpt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService.emitReceipt: receipt channel full, dropping", "to", rcpt.To)
	}
}
