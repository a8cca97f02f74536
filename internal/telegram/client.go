package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/logging"
)

const (
	DefaultAPIURL = "https://api.telegram.org"
	maxAttempts   = 3
)

// APIError is a non-retryable rejection returned by the Bot API.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram: status %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram: status %d: %s", e.StatusCode, e.Description)
}

// Client talks to the Telegram Bot API over plain HTTPS.
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
	backoff    func(attempt int) time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff overrides the pause between attempts.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = fn }
}

func NewClient(token, apiURL string, logger *logging.Logger, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		token:  token,
		apiURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		tracer: otel.Tracer("clinic.internal.telegram"),
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ booking.Notifier = (*Client)(nil)

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendBookingNotice sends the notice with one inline button per row.
func (c *Client) SendBookingNotice(ctx context.Context, chatID string, n booking.Notice) error {
	req := sendMessageRequest{
		ChatID:    chatID,
		Text:      n.Text,
		ParseMode: "HTML",
	}
	if len(n.Buttons) > 0 {
		markup := &replyMarkup{}
		for _, b := range n.Buttons {
			markup.InlineKeyboard = append(markup.InlineKeyboard, []inlineButton{{Text: b.Label, CallbackData: b.Token}})
		}
		req.ReplyMarkup = markup
	}
	return c.call(ctx, "sendMessage", req)
}

func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload)
}

func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload)
}

// call posts one Bot API method, retrying transport errors and 5xx replies.
func (c *Client) call(ctx context.Context, method string, payload any) error {
	if c.token == "" {
		return errors.New("telegram: bot token missing")
	}

	ctx, span := c.tracer.Start(ctx, "telegram."+method)
	defer span.End()
	span.SetAttributes(attribute.String("telegram.method", method))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, err := c.post(ctx, endpoint, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "telegram call failed")
	c.logger.Error("telegram call failed", "method", method, "error", lastErr)
	return lastErr
}

// post reports whether a failure is worth retrying.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return true, fmt.Errorf("telegram: request failed: %w", urlErr.Err)
		}
		return true, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && (parsed.OK || len(raw) == 0) {
		return false, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Description: parsed.Description}
	return resp.StatusCode >= 500, apiErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
