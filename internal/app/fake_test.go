package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"medisync/internal/availability"
)

// memRepo is an in-memory Repository for handler tests.
type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64]*User
	doctors   map[int64]*Doctor
	patients  map[int64]*Patient
	schedules map[int64]*Schedule
	appts     map[int64]*Appointment
	records   map[int64]*MedicalRecord
	rxs       map[int64][]Prescription
	tokens    map[int64][]byte
	events    map[int64]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:     map[int64]*User{},
		doctors:   map[int64]*Doctor{},
		patients:  map[int64]*Patient{},
		schedules: map[int64]*Schedule{},
		appts:     map[int64]*Appointment{},
		records:   map[int64]*MedicalRecord{},
		rxs:       map[int64][]Prescription{},
		tokens:    map[int64][]byte{},
		events:    map[int64]string{},
	}
}

var _ Repository = (*memRepo)(nil)

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) Ping(context.Context) error { return nil }

func (m *memRepo) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = m.id()
	u.IsActive = true
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	switch u.Role {
	case RoleDoctor:
		m.doctors[u.ID] = &Doctor{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
	case RolePatient:
		m.patients[u.ID] = &Patient{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
	}
	return nil
}

func (m *memRepo) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user")
}

func (m *memRepo) Doctor(_ context.Context, id int64) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, notFound("doctor")
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) ListDoctors(context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Doctor{}
	for _, d := range m.doctors {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b Doctor) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memRepo) UpdateDoctor(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		return notFound("doctor")
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *memRepo) Patient(_ context.Context, id int64) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, notFound("patient")
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) UpdatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return notFound("patient")
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *memRepo) InsertSchedule(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.schedules {
		if existing.DoctorID == s.DoctorID && existing.DayOfWeek == s.DayOfWeek {
			return fmt.Errorf("%w: %s", ErrScheduleExists, s.DayOfWeek)
		}
	}
	s.ID = m.id()
	cp := *s
	m.schedules[s.ID] = &cp
	return nil
}

func (m *memRepo) UpdateSchedule(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.schedules[s.ID]
	if !ok || existing.DoctorID != s.DoctorID {
		return notFound("schedule")
	}
	cp := *s
	m.schedules[s.ID] = &cp
	return nil
}

func (m *memRepo) DeleteSchedule(_ context.Context, doctorID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.schedules[id]
	if !ok || existing.DoctorID != doctorID {
		return notFound("schedule")
	}
	delete(m.schedules, id)
	return nil
}

func (m *memRepo) ListSchedules(_ context.Context, doctorID int64) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Schedule{}
	for _, s := range m.schedules {
		if s.DoctorID == doctorID {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b Schedule) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memRepo) BookedSlots(_ context.Context, doctorID int64, date time.Time) ([]availability.BookedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []availability.BookedSlot{}
	for _, a := range m.appts {
		if a.DoctorID == doctorID && availability.SameDate(a.Date.Time, date) {
			out = append(out, availability.BookedSlot{Date: a.Date.Time, StartTime: a.StartTime, EndTime: a.EndTime, Status: a.Status})
		}
	}
	return out, nil
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[a.DoctorID]; !ok {
		return notFound("doctor")
	}
	for _, b := range m.appts {
		if b.DoctorID == a.DoctorID && availability.SameDate(b.Date.Time, a.Date.Time) &&
			b.Status.Blocks() && b.StartTime < a.EndTime && b.EndTime > a.StartTime {
			return ErrSlotTaken
		}
	}
	a.ID = m.id()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) Appointment(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, notFound("appointment")
	}
	return m.hydrate(a), nil
}

func (m *memRepo) hydrate(a *Appointment) *Appointment {
	cp := *a
	if p, ok := m.patients[a.PatientID]; ok {
		cp.Patient = Party{ID: p.ID, Name: fullName(p.FirstName, p.LastName), Email: p.Email}
	}
	if d, ok := m.doctors[a.DoctorID]; ok {
		cp.Doctor = Party{ID: d.ID, Name: d.DisplayName(), Email: d.Email, Specialization: d.Specialization}
	}
	cp.GoogleEventID = m.events[a.ID]
	return &cp
}

func (m *memRepo) ListAppointments(_ context.Context, role Role, userID int64) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Appointment{}
	for _, a := range m.appts {
		if (role == RolePatient && a.PatientID == userID) || (role == RoleDoctor && a.DoctorID == userID) {
			out = append(out, *m.hydrate(a))
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return b.Date.Compare(a.Date.Time) })
	return out, nil
}

func (m *memRepo) TransitionAppointment(_ context.Context, id int64, from, to availability.Status, notes *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return fmt.Errorf("%w: appointment %d is not %s", ErrStatusConflict, id, from)
	}
	a.Status = to
	if notes != nil {
		a.Notes = *notes
	}
	return nil
}

func (m *memRepo) SetAppointmentEvent(_ context.Context, id int64, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = eventID
	return nil
}

func (m *memRepo) CreateMedicalRecord(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.AppointmentID == r.AppointmentID {
			return fmt.Errorf("%w: appointment %d", ErrRecordExists, r.AppointmentID)
		}
	}
	r.ID = m.id()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memRepo) hydrateRecord(r *MedicalRecord) MedicalRecord {
	cp := *r
	if p, ok := m.patients[r.PatientID]; ok {
		cp.Patient = Party{ID: p.ID, Name: fullName(p.FirstName, p.LastName), Email: p.Email}
	}
	if d, ok := m.doctors[r.DoctorID]; ok {
		cp.Doctor = Party{ID: d.ID, Name: d.DisplayName(), Email: d.Email, Specialization: d.Specialization}
	}
	cp.PrescriptionCount = len(m.rxs[r.ID])
	return cp
}

func (m *memRepo) MedicalRecord(_ context.Context, id int64) (*MedicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, notFound("medical record")
	}
	cp := m.hydrateRecord(r)
	return &cp, nil
}

func (m *memRepo) ListMedicalRecords(_ context.Context, role Role, userID int64) ([]MedicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []MedicalRecord{}
	for _, r := range m.records {
		if (role == RolePatient && r.PatientID == userID) || (role == RoleDoctor && r.DoctorID == userID) {
			out = append(out, m.hydrateRecord(r))
		}
	}
	slices.SortFunc(out, func(a, b MedicalRecord) int { return int(b.ID - a.ID) })
	return out, nil
}

func (m *memRepo) AddPrescription(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[p.MedicalRecordID]; !ok {
		return notFound("medical record")
	}
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.rxs[p.MedicalRecordID] = append(m.rxs[p.MedicalRecordID], *p)
	return nil
}

func (m *memRepo) ListPrescriptions(_ context.Context, recordID int64) ([]Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prescription{}, m.rxs[recordID]...), nil
}

func (m *memRepo) SaveCalendarToken(_ context.Context, doctorID int64, token []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[doctorID] = token
	return nil
}

func (m *memRepo) CalendarToken(_ context.Context, doctorID int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[doctorID]
	if !ok {
		return nil, notFound("calendar token")
	}
	return t, nil
}
