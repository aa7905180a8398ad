// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/turochat/internal/config"
	"github.com/jeranaias/turochat/internal/credential"
	"github.com/jeranaias/turochat/internal/logging"
	"github.com/jeranaias/turochat/internal/model"
)

// Configuration constants for the completion endpoint.
const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the model sent with every request.
	DefaultModel = "gpt-4o-mini"

	// DefaultTemperature is the sampling temperature sent with every request.
	DefaultTemperature = 0.7

	// DefaultTimeout is the default timeout for a completion request.
	DefaultTimeout = 60 * time.Second

	// GenericUpstreamMessage is reported when the endpoint fails without a
	// readable error message.
	GenericUpstreamMessage = "failed to fetch response from completion endpoint"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrMissingCredential indicates no API key is available. No request is made.
var ErrMissingCredential = errors.New("API key is not set. Please provide your API key")

// UpstreamError reports a response from the endpoint that is not a usable
// completion: a non-success status or an empty choice list.
type UpstreamError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("completion endpoint error (HTTP %d): %s", e.Status, e.Message)
	}
	return "completion endpoint error: " + e.Message
}

// TransportError reports a request that never produced a response.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// MESSAGES
// =============================================================================

// ChatMessage is a single message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`    // "user", "assistant", or "system"
	Content string `json:"content"` // The message content
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// FlattenMessage converts a log message to its request form. Attachments
// are not uploaded; they are described by a text placeholder followed by
// any content the message carries.
func FlattenMessage(msg model.Message) ChatMessage {
	if !msg.HasAttachment() {
		return ChatMessage{Role: msg.Role.String(), Content: msg.Content}
	}

	placeholder := fmt.Sprintf("[Attached image: %s (%s)]", msg.AttachmentName, msg.AttachmentMediaType)
	if msg.Content != "" {
		placeholder += "\n" + msg.Content
	}
	return ChatMessage{Role: msg.Role.String(), Content: placeholder}
}

// FlattenMessages converts a whole log.
func FlattenMessages(msgs []model.Message) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = FlattenMessage(msg)
	}
	return out
}

// =============================================================================
// CLIENT
// =============================================================================

// CredentialSource supplies the API key for each request.
type CredentialSource interface {
	Get(ctx context.Context) (string, bool, error)
}

// Client sends single chat completion requests. It is stateless between
// calls and never retries.
type Client struct {
	creds       CredentialSource
	baseURL     string
	model       string
	temperature float32
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a client from cloud configuration. Zero values fall
// back to the package defaults.
func NewClient(creds CredentialSource, cfg config.CloudConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	c := &Client{
		creds:       creds,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		httpClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		logger:      logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.temperature == 0 {
		c.temperature = DefaultTemperature
	}
	if cfg.TimeoutSecs <= 0 {
		c.httpClient.Timeout = DefaultTimeout
	}
	return c
}

// WithBaseURL sets a custom API root.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// Model returns the model identifier sent with requests.
func (c *Client) Model() string {
	return c.model
}

// Complete sends messages and returns the content of the first choice.
//
// Errors are ErrMissingCredential (no request made), *UpstreamError or
// *TransportError.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	apiKey, ok, err := c.creds.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	if !ok || apiKey == "" {
		return "", ErrMissingCredential
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = c.baseURL
	clientConfig.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(clientConfig)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.temperature,
	}

	start := time.Now()
	c.logger.Debug("completion request",
		"model", c.model,
		"messages", len(messages),
		"fingerprint", credential.Fingerprint(apiKey))

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		classified := classifyError(err)
		c.logger.Warn("completion failed", "error", classified, "duration", time.Since(start))
		return "", classified
	}

	if len(resp.Choices) == 0 {
		c.logger.Warn("completion returned no choices")
		return "", &UpstreamError{Status: http.StatusOK, Message: "empty response from completion endpoint"}
	}

	c.logger.Debug("completion received",
		"duration", time.Since(start),
		"total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// classifyError maps a go-openai error onto UpstreamError or TransportError.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = GenericUpstreamMessage
		}
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Message: msg}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{Status: reqErr.HTTPStatusCode, Message: GenericUpstreamMessage}
	}

	// A success status with an undecodable body still came from the endpoint.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &UpstreamError{Status: http.StatusOK, Message: GenericUpstreamMessage}
	}

	return &TransportError{Err: err}
}
