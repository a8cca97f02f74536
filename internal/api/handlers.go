package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/booking"
	"github.com/hackgods/clinic-booking/internal/catalog"
	"github.com/hackgods/clinic-booking/internal/logging"
)

// BookingService is the part of booking.Service the HTTP layer uses.
type BookingService interface {
	Book(ctx context.Context, req booking.BookRequest) (*booking.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to booking.Status) (*booking.Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]booking.Appointment, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, r *booking.DateRange) ([]booking.Appointment, error)
}

type handlers struct {
	bookings BookingService
	catalog  catalog.Store
	validate *requestValidator
	loc      *time.Location
	logger   *logging.Logger
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if fields := h.validate.Struct(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Fields: fields})
		return
	}

	at, err := parseDateTime(req.DateTime, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_time", err.Error())
		return
	}

	patientID := sess.PatientID
	if sess.Staff {
		if req.PatientID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required for staff sessions")
			return
		}
		patientID = uuid.MustParse(req.PatientID)
	}

	appt, err := h.bookings.Book(r.Context(), booking.BookRequest{
		PatientID: patientID,
		DoctorID:  uuid.MustParse(req.DoctorID),
		ServiceID: uuid.MustParse(req.ServiceID),
		DateTime:  at,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	if sess.Staff {
		writeError(w, http.StatusBadRequest, "invalid_request", "staff sessions list appointments per doctor")
		return
	}

	appts, err := h.bookings.ListForPatient(r.Context(), sess.PatientID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	appt, ok := h.loadOwnedAppointment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) transition(to booking.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		if to == booking.StatusCompleted && !sess.Staff {
			writeError(w, http.StatusForbidden, "forbidden", "only clinic staff can complete appointments")
			return
		}

		appt, ok := h.loadOwnedAppointment(w, r)
		if !ok {
			return
		}

		updated, err := h.bookings.UpdateStatus(r.Context(), appt.ID, to)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
	}
}

// loadOwnedAppointment writes the error response itself when it returns false.
func (h *handlers) loadOwnedAppointment(w http.ResponseWriter, r *http.Request) (*booking.Appointment, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return nil, false
	}

	appt, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return nil, false
	}

	sess, _ := SessionFromContext(r.Context())
	if !sess.CanAccess(appt.PatientID) {
		// indistinguishable from a missing appointment
		writeServiceError(w, h.logger, booking.ErrAppointmentNotFound)
		return nil, false
	}
	return appt, true
}

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	doctors, err := h.catalog.ListDoctors(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	out := make([]DoctorResponse, 0, len(doctors))
	for i := range doctors {
		out = append(out, toDoctorResponse(&doctors[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	doctor, err := h.catalog.GetDoctor(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponse(doctor))
}

func (h *handlers) doctorAppointments(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	if !sess.Staff {
		writeError(w, http.StatusForbidden, "forbidden", "only clinic staff can view a doctor's schedule")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	q := r.URL.Query()
	from, err := parseRangeBound(q.Get("from"), h.loc, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	to, err := parseRangeBound(q.Get("to"), h.loc, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}

	appts, err := h.bookings.ListForDoctor(r.Context(), id, &booking.DateRange{From: from, To: to})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *handlers) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.ListServices(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	out := make([]ServiceResponse, 0, len(services))
	for i := range services {
		out = append(out, toServiceResponse(&services[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
