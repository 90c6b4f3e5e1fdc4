// Package messaging defines the transport abstraction used to reach users.
//
// A Service sends outbound messages and surfaces inbound responses and
// delivery receipts over channels. WhatsApp (via whatsmeow) and Twilio
// implementations are provided.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

// Channel and timeout configuration.
const (
	// DefaultChannelBufferSize is the buffer size for receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout is the timeout for channel send operations.
	DefaultChannelTimeout = 1 * time.Second
)

// Error variables for messaging operations.
var (
	ErrInvalidRecipient = errors.New("invalid recipient phone number")
	ErrServiceStopped   = errors.New("messaging service is stopped")
)

var nonDigitRegex = regexp.MustCompile(`[^0-9]`)

// Service is the messaging transport contract.
//
// SendMessage returns the transport message ID so callers can correlate
// receipts. Responses carries inbound user messages; Receipts carries
// delivery status updates. Both channels close on Stop.
type Service interface {
	// ValidateAndCanonicalizeRecipient normalizes a recipient identifier to
	// digits-only E.164 form without the plus sign.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message and returns the transport message ID.
	SendMessage(ctx context.Context, to, body string) (string, error)

	// ReactToLastMessage attaches an emoji reaction to the user's most
	// recent inbound message, on transports that support reactions.
	ReactToLastMessage(ctx context.Context, userID, emoji string) error

	// Start begins processing transport events.
	Start(ctx context.Context) error

	// Stop shuts down the transport and closes the event channels.
	Stop() error

	// Receipts returns the channel of delivery status updates.
	Receipts() <-chan models.Receipt

	// Responses returns the channel of inbound user messages.
	Responses() <-chan models.Response
}

// CanonicalizePhone strips formatting from a phone number and validates the
// result is a plausible international number.
func CanonicalizePhone(recipient string) (string, error) {
	trimmed := strings.TrimSpace(recipient)
	trimmed = strings.TrimPrefix(trimmed, "whatsapp:")
	digits := nonDigitRegex.ReplaceAllString(trimmed, "")
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	return digits, nil
}
