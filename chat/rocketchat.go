// Package chat posts messages to other Rocket.Chat users.
package chat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tbxark/remi/types"
)

const PostMessagePath = "/api/v1/chat.postMessage"

type Deliverer interface {
	Send(ctx context.Context, channel, text string, attachments ...types.Attachment) (*DeliveryResult, error)
}

type DeliveryResult struct {
	MessageID string `json:"message_id"`
	Channel   string `json:"channel"`
}

type DeliveryError struct {
	Channel string
	Code    int
	Body    string
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver to %s: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("deliver to %s: status %d: %s", e.Channel, e.Code, e.Body)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err != nil {
		return []error{types.ErrDeliveryFailed, e.Err}
	}
	return []error{types.ErrDeliveryFailed}
}

// RocketChat sends through the REST API with a bot's personal access token.
// Sends are never retried: a timed-out post may still have been delivered.
type RocketChat struct {
	baseURL    string
	authToken  string
	userID     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*RocketChat)

func WithTimeout(d time.Duration) Option {
	return func(r *RocketChat) { r.timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(r *RocketChat) { r.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *RocketChat) { r.logger = logger }
}

func NewRocketChat(baseURL, authToken, userID string, opts ...Option) *RocketChat {
	r := &RocketChat{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		userID:     userID,
		timeout:    10 * time.Second,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type postMessageRequest struct {
	Channel     string             `json:"channel"`
	Text        string             `json:"text"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

type postMessageResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	Message struct {
		ID string `json:"_id"`
	} `json:"message"`
}

func (r *RocketChat) Send(ctx context.Context, channel, text string, attachments ...types.Attachment) (*DeliveryResult, error) {
	payload, err := sonic.Marshal(postMessageRequest{Channel: channel, Text: text, Attachments: attachments})
	if err != nil {
		return nil, &DeliveryError{Channel: channel, Err: fmt.Errorf("encode payload: %w", err)}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+PostMessagePath, bytes.NewReader(payload))
	if err != nil {
		return nil, &DeliveryError{Channel: channel, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", r.authToken)
	req.Header.Set("X-User-Id", r.userID)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &DeliveryError{Channel: channel, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &DeliveryError{Channel: channel, Code: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &DeliveryError{Channel: channel, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed postMessageResponse
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return nil, &DeliveryError{Channel: channel, Code: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !parsed.Success {
		return nil, &DeliveryError{Channel: channel, Code: resp.StatusCode, Body: parsed.Error}
	}
	r.logger.Info("Message delivered", "channel", channel, "message_id", parsed.Message.ID)
	return &DeliveryResult{MessageID: parsed.Message.ID, Channel: channel}, nil
}

var _ Deliverer = (*RocketChat)(nil)
