// Package genai provides the OpenAI-backed intent classifier for Yoman.
//
// The classifier is treated as a black box by the rest of the system: it
// receives message text plus conversational context and returns an intent
// name, a confidence score and an extracted entity bag. Prompting details
// live entirely inside this package.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dorshemer/yoman/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is the chat model used for classification.
var DefaultModel = openai.ChatModelGPT4oMini

// ClassifyRequest carries everything the classifier may use for a single
// classification call.
type ClassifyRequest struct {
	UserID        string
	Text          string
	Timezone      string
	KnownContacts []string
	History       []models.HistoryMessage
}

// Classification is the classifier's raw verdict for one message.
type Classification struct {
	Intent        models.Intent         `json:"intent"`
	Confidence    float64               `json:"confidence"`
	Entities      models.IntentEntities `json:"entities"`
	Clarification string                `json:"clarification,omitempty"`
}

// ClientInterface defines the classifier capability consumed by the intent
// pipeline. Implemented by Client and by test fakes.
type ClientInterface interface {
	Classify(ctx context.Context, req ClassifyRequest) (*Classification, error)
}

// chatService defines the minimal chat-completion surface used, so tests can
// substitute a mock.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model used for classification.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat-completion service for intent classification.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a new GenAI client. The API key comes from options
// or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client initialized", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// classifierSystemPrompt instructs the model to emit strict JSON matching
// the Classification schema. Intent names must match models.Intent values.
const classifierSystemPrompt = `You classify Hebrew (and occasionally English) personal-assistant messages
about calendar events, reminders and tasks.

Respond with a single JSON object, no prose:
{
  "intent": one of [create_event, create_reminder, create_task, list_events,
            list_reminders, list_tasks, search_event, update_event,
            update_reminder, delete_event, delete_reminder, delete_task,
            complete_task, show_menu, help, unknown],
  "confidence": number between 0 and 1,
  "entities": {
    "title": string, "date_text": string, "time_text": string,
    "location": string, "participants": [string], "lead_minutes": number,
    "recurrence": one of ["", "daily", "weekly", "monthly"],
    "priority": one of ["", "low", "medium", "high"],
    "delete_target": string, "search_query": string
  },
  "clarification": optional question to ask the user when a required entity is missing
}

Copy date and time expressions verbatim into date_text/time_text; never
resolve them yourself. Omit entity fields you did not find.`

// Classify sends the (context-enhanced) text to the model and parses its
// JSON verdict. Unknown intent names degrade to "unknown" rather than
// failing the call.
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (*Classification, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(c.buildSystemPrompt(req)),
	}
	for _, h := range req.History {
		switch h.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(h.Content))
		default:
			messages = append(messages, openai.UserMessage(h.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Text))

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		slog.Error("genai.Classify: completion failed", "error", err, "userID", req.UserID)
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.Classify: no choices returned", "userID", req.UserID)
		return nil, fmt.Errorf("no choices returned")
	}

	var out Classification
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		slog.Error("genai.Classify: invalid JSON from model", "error", err, "userID", req.UserID)
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	if !models.IsValidIntent(out.Intent) {
		slog.Warn("genai.Classify: unknown intent name from model", "intent", out.Intent, "userID", req.UserID)
		out.Intent = models.IntentUnknown
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	slog.Debug("genai.Classify: classified", "userID", req.UserID, "intent", out.Intent, "confidence", out.Confidence)
	return &out, nil
}

// buildSystemPrompt appends per-request context (timezone, known contacts)
// to the base classification prompt.
func (c *Client) buildSystemPrompt(req ClassifyRequest) string {
	var b strings.Builder
	b.WriteString(classifierSystemPrompt)
	if req.Timezone != "" {
		fmt.Fprintf(&b, "\n\nThe user's timezone is %s.", req.Timezone)
	}
	if len(req.KnownContacts) > 0 {
		fmt.Fprintf(&b, "\nKnown contact names: %s.", strings.Join(req.KnownContacts, ", "))
	}
	return b.String()
}
