package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/catalog"
)

// memoryRepo mirrors PgRepository semantics; one mutex stands in for the
// advisory lock and the partial unique index.
type memoryRepo struct {
	mu         sync.Mutex
	appts      map[uuid.UUID]*Appointment
	events     []EventLog
	createErr  error
	createHook func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *memoryRepo) conflictLocked(doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) bool {
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.DateTime.Equal(at) && a.Status.Active() && a.ID != excludeID {
			return true
		}
	}
	return false
}

func (r *memoryRepo) FindConflicting(_ context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflictLocked(doctorID, at, excludeID), nil
}

func (r *memoryRepo) Create(_ context.Context, d Draft) (*Appointment, error) {
	if r.createHook != nil {
		r.createHook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return nil, r.createErr
	}
	if r.conflictLocked(d.DoctorID, d.DateTime, uuid.Nil) {
		return nil, ErrSlotTaken
	}

	now := time.Now()
	a := &Appointment{
		ID:        uuid.New(),
		DoctorID:  d.DoctorID,
		PatientID: d.PatientID,
		ServiceID: d.ServiceID,
		DateTime:  d.DateTime,
		Status:    StatusPending,
		Notes:     d.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, to Status) (*Appointment, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, "", ErrAppointmentNotFound
	}
	from := a.Status
	if from != to {
		if !CanTransition(from, to) {
			return nil, from, ErrInvalidTransition
		}
		a.Status = to
		a.UpdatedAt = time.Now()
	}
	cp := *a
	return &cp, from, nil
}

func (r *memoryRepo) ListForPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	return out, nil
}

func (r *memoryRepo) ListForDoctor(_ context.Context, doctorID uuid.UUID, dr *DateRange) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if dr != nil && dr.From != nil && a.DateTime.Before(*dr.From) {
			continue
		}
		if dr != nil && dr.To != nil && !a.DateTime.Before(*dr.To) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

func (r *memoryRepo) ListDueReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusPending && a.RemindedAt == nil && !a.DateTime.Before(from) && a.DateTime.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.RemindedAt = &at
	return nil
}

func (r *memoryRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memoryRepo) activeAt(doctorID uuid.UUID, at time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.DateTime.Equal(at) && a.Status.Active() {
			n++
		}
	}
	return n
}

func (r *memoryRepo) eventCount(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeCatalog struct {
	doctors  map[uuid.UUID]*catalog.Doctor
	services map[uuid.UUID]*catalog.Service
	patients map[uuid.UUID]*catalog.Patient
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		doctors:  make(map[uuid.UUID]*catalog.Doctor),
		services: make(map[uuid.UUID]*catalog.Service),
		patients: make(map[uuid.UUID]*catalog.Patient),
	}
}

func (c *fakeCatalog) GetDoctor(_ context.Context, id uuid.UUID) (*catalog.Doctor, error) {
	if d, ok := c.doctors[id]; ok {
		return d, nil
	}
	return nil, catalog.ErrDoctorNotFound
}

func (c *fakeCatalog) ListDoctors(_ context.Context, activeOnly bool) ([]catalog.Doctor, error) {
	var out []catalog.Doctor
	for _, d := range c.doctors {
		if !activeOnly || d.Active {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetService(_ context.Context, id uuid.UUID) (*catalog.Service, error) {
	if s, ok := c.services[id]; ok {
		return s, nil
	}
	return nil, catalog.ErrServiceNotFound
}

func (c *fakeCatalog) ListServices(context.Context) ([]catalog.Service, error) {
	var out []catalog.Service
	for _, s := range c.services {
		out = append(out, *s)
	}
	return out, nil
}

func (c *fakeCatalog) GetPatient(_ context.Context, id uuid.UUID) (*catalog.Patient, error) {
	if p, ok := c.patients[id]; ok {
		return p, nil
	}
	return nil, catalog.ErrPatientNotFound
}

func (c *fakeCatalog) GetPatientByChatID(_ context.Context, chatID string) (*catalog.Patient, error) {
	for _, p := range c.patients {
		if addr, ok := p.NotificationAddress(); ok && addr == chatID {
			return p, nil
		}
	}
	return nil, catalog.ErrPatientNotFound
}

type sentNotice struct {
	chatID string
	notice Notice
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (n *fakeNotifier) SendBookingNotice(_ context.Context, chatID string, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{chatID: chatID, notice: notice})
	return n.err
}

func (n *fakeNotifier) calls() []sentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotice(nil), n.sent...)
}
