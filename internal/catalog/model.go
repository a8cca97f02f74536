package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialization  string
	Room            string
	ExperienceYears int
	Rating          float64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Service struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// Price renders the price with two decimals.
func (s Service) Price() string {
	return fmt.Sprintf("%d.%02d", s.PriceCents/100, s.PriceCents%100)
}

type Patient struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	Email          *string
	TelegramChatID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotificationAddress returns the patient's Telegram chat id, if any.
func (p Patient) NotificationAddress() (string, bool) {
	if p.TelegramChatID == nil || *p.TelegramChatID == "" {
		return "", false
	}
	return *p.TelegramChatID, true
}
