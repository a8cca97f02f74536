package booking

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/catalog"
)

// Notifier delivers a booking notice to a patient's chat. Callers treat every
// error as non-fatal.
type Notifier interface {
	SendBookingNotice(ctx context.Context, chatID string, n Notice) error
}

// Button is an inline action; Token is routed back via ParseCallbackToken.
type Button struct {
	Label string
	Token string
}

type Notice struct {
	Text    string
	Buttons []Button
}

type CallbackAction string

const (
	ActionConfirm    CallbackAction = "confirm"
	ActionReschedule CallbackAction = "reschedule"
)

var ErrUnknownCallback = errors.New("unknown callback token")

func CallbackToken(action CallbackAction, appointmentID uuid.UUID) string {
	return string(action) + "_" + appointmentID.String()
}

// ParseCallbackToken splits "confirm_<id>" / "reschedule_<id>".
func ParseCallbackToken(token string) (CallbackAction, uuid.UUID, error) {
	action, rawID, ok := strings.Cut(token, "_")
	if !ok {
		return "", uuid.Nil, ErrUnknownCallback
	}
	switch CallbackAction(action) {
	case ActionConfirm, ActionReschedule:
	default:
		return "", uuid.Nil, ErrUnknownCallback
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("%w: %v", ErrUnknownCallback, err)
	}
	return CallbackAction(action), id, nil
}

const noticeTimeLayout = "02.01.2006 15:04"

// BuildNotice formats the HTML summary sent after booking and for reminders.
func BuildNotice(title string, appt *Appointment, doctor *catalog.Doctor, svc *catalog.Service, loc *time.Location) Notice {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(title))
	fmt.Fprintf(&b, "Date: %s\n", appt.DateTime.In(loc).Format(noticeTimeLayout))
	fmt.Fprintf(&b, "Doctor: %s\n", html.EscapeString(doctor.Name))
	fmt.Fprintf(&b, "Service: %s\n\n", html.EscapeString(svc.Name))
	b.WriteString("Please confirm your appointment:")

	return Notice{
		Text: b.String(),
		Buttons: []Button{
			{Label: "Confirm", Token: CallbackToken(ActionConfirm, appt.ID)},
			{Label: "Reschedule", Token: CallbackToken(ActionReschedule, appt.ID)},
		},
	}
}
