package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/logging"
)

const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// chatID prefers the chat the button was pressed in over the sender.
func (q *CallbackQuery) chatID() string {
	if q.Message != nil && q.Message.Chat.ID != 0 {
		return strconv.FormatInt(q.Message.Chat.ID, 10)
	}
	return strconv.FormatInt(q.From.ID, 10)
}

type Confirmer interface {
	ConfirmFromChat(ctx context.Context, id uuid.UUID, chatID string) (*booking.Appointment, error)
}

type PatientFinder interface {
	GetPatientByChatID(ctx context.Context, chatID string) (*catalog.Patient, error)
}

type Messenger interface {
	SendText(ctx context.Context, chatID, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

const (
	textConfirmed     = "Your appointment is confirmed. See you soon!"
	textNotOwner      = "You cannot confirm this appointment."
	textNotFound      = "Appointment not found."
	textNotPending    = "This appointment can no longer be confirmed."
	textFailed        = "Something went wrong. Please contact the clinic."
	textReschedule    = "To reschedule, call the clinic front desk or cancel this appointment and book a new one in your account."
	textUnknownAction = "Unknown action."
	textWelcome       = "Welcome to the clinic! Link this chat in your account to receive appointment notices."
)

// WebhookHandler serves Bot API updates pushed to the webhook URL.
type WebhookHandler struct {
	secret    string
	confirmer Confirmer
	patients  PatientFinder
	messenger Messenger
	logger    *logging.Logger
}

func NewWebhookHandler(secret string, confirmer Confirmer, patients PatientFinder, messenger Messenger, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    secret,
		confirmer: confirmer,
		patients:  patients,
		messenger: messenger,
		logger:    logger,
	}
}

// ServeHTTP answers 200 for every well-formed update; Telegram redelivers
// anything else.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var upd Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&upd); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	h.Handle(r.Context(), upd)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handle routes one update. Failures are logged; the update is never retried.
func (h *WebhookHandler) Handle(ctx context.Context, upd Update) {
	switch {
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	default:
		h.logger.Debug("telegram update ignored", "update_id", upd.UpdateID)
	}
}

func (h *WebhookHandler) handleCallback(ctx context.Context, q *CallbackQuery) {
	chatID := q.chatID()

	action, id, err := booking.ParseCallbackToken(q.Data)
	if err != nil {
		h.logger.Warn("unknown telegram callback", "data", q.Data, "chat_id", chatID)
		h.answer(ctx, q.ID, textUnknownAction)
		return
	}
	h.answer(ctx, q.ID, "")

	switch action {
	case booking.ActionConfirm:
		h.reply(ctx, chatID, h.confirm(ctx, id, chatID))
	case booking.ActionReschedule:
		h.reply(ctx, chatID, textReschedule)
	}
}

func (h *WebhookHandler) confirm(ctx context.Context, id uuid.UUID, chatID string) string {
	_, err := h.confirmer.ConfirmFromChat(ctx, id, chatID)
	switch {
	case err == nil:
		return textConfirmed
	case errors.Is(err, booking.ErrNotAppointmentOwner):
		return textNotOwner
	case errors.Is(err, booking.ErrAppointmentNotFound):
		return textNotFound
	case errors.Is(err, booking.ErrInvalidTransition):
		return textNotPending
	default:
		h.logger.Error("confirm from chat failed", "appointment_id", id, "chat_id", chatID, "error", err)
		return textFailed
	}
}

func (h *WebhookHandler) handleMessage(ctx context.Context, m *Message) {
	if !isStartCommand(m.Text) {
		return
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)

	patient, err := h.patients.GetPatientByChatID(ctx, chatID)
	switch {
	case err == nil:
		h.reply(ctx, chatID, fmt.Sprintf("Welcome back, %s! Appointment notices will arrive in this chat.", html.EscapeString(patient.Name)))
	case errors.Is(err, catalog.ErrPatientNotFound):
		h.reply(ctx, chatID, textWelcome)
	default:
		h.logger.Error("lookup patient by chat failed", "chat_id", chatID, "error", err)
		h.reply(ctx, chatID, textFailed)
	}
}

// isStartCommand accepts "/start", "/start@bot" and "/start <payload>".
func isStartCommand(text string) bool {
	cmd, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd == "/start"
}

func (h *WebhookHandler) reply(ctx context.Context, chatID, text string) {
	if err := h.messenger.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("telegram reply not delivered", "chat_id", chatID, "error", err)
	}
}

func (h *WebhookHandler) answer(ctx context.Context, callbackID, text string) {
	if err := h.messenger.AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.Warn("telegram callback not answered", "callback_id", callbackID, "error", err)
	}
}
