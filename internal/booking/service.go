package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

var tracer = otel.Tracer("clinic.internal.booking")

type Options struct {
	Location      *time.Location
	NotifyTimeout time.Duration
	Logger        *logging.Logger
	Metrics       *metrics.BookingMetrics
	Now           func() time.Time
}

type Service struct {
	repo      Repository
	catalog   catalog.Store
	locker    redisclient.Locker
	notifier  Notifier
	validator *Validator

	loc           *time.Location
	notifyTimeout time.Duration
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
	now           func() time.Time

	inflight sync.WaitGroup
}

// NewService wires the booking use cases. A nil locker leaves slot exclusion
// to the repository transaction; a nil notifier disables notices.
func NewService(repo Repository, store catalog.Store, locker redisclient.Locker, notifier Notifier, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:          repo,
		catalog:       store,
		locker:        locker,
		notifier:      notifier,
		validator:     NewValidator(repo, opts.Location),
		loc:           opts.Location,
		notifyTimeout: opts.NotifyTimeout,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
}

type BookRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ServiceID uuid.UUID
	DateTime  time.Time
	Notes     string
}

// Book validates and reserves a doctor's slot for a patient. The notice to the
// patient is sent after the appointment is stored and never affects the result.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.doctor_id", req.DoctorID.String()),
		attribute.String("clinic.patient_id", req.PatientID.String()),
	)

	appt, err := s.book(ctx, req)

	outcome := "created"
	if err != nil {
		outcome = ErrorCode(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.ObserveBooking(outcome, time.Since(start).Seconds())

	if err != nil {
		if IsValidationError(err) {
			s.logger.Info("booking rejected", "reason", outcome, "doctor_id", req.DoctorID, "patient_id", req.PatientID)
		} else {
			s.logger.Error("booking failed", "error", err, "doctor_id", req.DoctorID, "patient_id", req.PatientID)
		}
		return nil, err
	}
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	patient, err := s.catalog.GetPatient(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.catalog.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	candidate := AppointmentRequest{
		Doctor:    doctor,
		ServiceID: svc.ID,
		DateTime:  req.DateTime,
	}
	if err := s.validator.Validate(ctx, candidate, s.now()); err != nil {
		return nil, err
	}

	draft := Draft{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		ServiceID: svc.ID,
		DateTime:  req.DateTime,
		Notes:     req.Notes,
	}

	var created *Appointment
	err = s.withSlotLock(ctx, doctor.ID, req.DateTime, func(lockCtx context.Context) error {
		appt, err := s.repo.Create(lockCtx, draft)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  doctor.ID.String(),
		"patient_id": patient.ID.String(),
		"service_id": svc.ID.String(),
		"date_time":  created.DateTime,
	})

	if chatID, ok := patient.NotificationAddress(); ok {
		s.dispatchNotice(ctx, "booking", chatID, BuildNotice("Appointment booked", created, doctor, svc, s.loc))
	}

	return created, nil
}

func (s *Service) withSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithSlotLock(ctx, doctorID, at, fn)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		// postgres still serialises the slot on its own
		s.logger.Warn("slot lock unavailable, booking without it", "error", err, "doctor_id", doctorID)
		s.metrics.ObserveLockFallback()
		return fn(ctx)
	}
	return err
}

// dispatchNotice sends in the background with its own deadline, detached from
// the request context so a finished request does not cancel delivery.
func (s *Service) dispatchNotice(ctx context.Context, kind, chatID string, n Notice) {
	if s.notifier == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		err := s.notifier.SendBookingNotice(sendCtx, chatID, n)
		s.metrics.ObserveNotification(kind, err == nil)
		if err != nil {
			s.logger.Warn("booking notice not delivered", "kind", kind, "chat_id", chatID, "error", err)
		}
	}()
}

// Wait blocks until background notices have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// UpdateStatus moves an appointment to a new status. Repeating the current
// status succeeds without side effects.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id.String()),
		attribute.String("clinic.status", string(to)),
	)

	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	updated, from, err := s.repo.UpdateStatus(ctx, id, to)
	if err != nil {
		s.metrics.ObserveTransition(string(to), ErrorCode(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
		if IsValidationError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	if from == to {
		s.metrics.ObserveTransition(string(to), "unchanged")
		return updated, nil
	}

	s.metrics.ObserveTransition(string(to), "ok")
	s.logEvent(ctx, updated.ID, eventForStatus(to), map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusCancelled)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateStatus(ctx, id, StatusCompleted)
}

// ConfirmFromChat confirms an appointment from a chat callback. Only the chat
// registered on the appointment's patient may confirm it.
func (s *Service) ConfirmFromChat(ctx context.Context, id uuid.UUID, chatID string) (*Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	patient, err := s.catalog.GetPatient(ctx, appt.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, ErrNotAppointmentOwner
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if addr, ok := patient.NotificationAddress(); !ok || addr != chatID {
		return nil, ErrNotAppointmentOwner
	}

	return s.Confirm(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	appts, err := s.repo.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, r *DateRange) ([]Appointment, error) {
	if _, err := s.catalog.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	appts, err := s.repo.ListForDoctor(ctx, doctorID, r)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

// SendReminders notifies patients of pending appointments starting within
// lead from now. It is intended to be called by the worker periodically and
// returns how many reminders were delivered.
func (s *Service) SendReminders(ctx context.Context, lead time.Duration) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	now := s.now()
	due, err := s.repo.ListDueReminders(ctx, now, now.Add(lead))
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		appt := &due[i]
		delivered, err := s.remind(ctx, appt)
		if err != nil {
			s.logger.Warn("reminder not delivered", "appointment_id", appt.ID, "error", err)
			continue
		}
		if delivered {
			sent++
		}
	}
	return sent, nil
}

// remind reports whether a notice went out. Patients without a chat are
// marked as reminded so they are not picked up again.
func (s *Service) remind(ctx context.Context, appt *Appointment) (bool, error) {
	patient, err := s.catalog.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return false, fmt.Errorf("load patient: %w", err)
	}
	chatID, ok := patient.NotificationAddress()
	if !ok {
		if err := s.repo.MarkReminded(ctx, appt.ID, s.now()); err != nil {
			return false, fmt.Errorf("mark reminded: %w", err)
		}
		return false, nil
	}
	doctor, err := s.catalog.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return false, fmt.Errorf("load doctor: %w", err)
	}
	svc, err := s.catalog.GetService(ctx, appt.ServiceID)
	if err != nil {
		return false, fmt.Errorf("load service: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	err = s.notifier.SendBookingNotice(sendCtx, chatID, BuildNotice("Appointment reminder", appt, doctor, svc, s.loc))
	cancel()
	s.metrics.ObserveNotification("reminder", err == nil)
	if err != nil {
		return false, err
	}

	if err := s.repo.MarkReminded(ctx, appt.ID, s.now()); err != nil {
		return true, fmt.Errorf("mark reminded: %w", err)
	}
	s.logEvent(ctx, appt.ID, EventAppointmentReminded, map[string]any{"chat_id": chatID})
	return true, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("failed to insert event log", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}
