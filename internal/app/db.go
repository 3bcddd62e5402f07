package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"medisync/internal/availability"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Repository is the persistence surface the handlers depend on.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	Doctor(ctx context.Context, id int64) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	UpdateDoctor(ctx context.Context, d *Doctor) error
	Patient(ctx context.Context, id int64) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error

	InsertSchedule(ctx context.Context, s *Schedule) error
	UpdateSchedule(ctx context.Context, s *Schedule) error
	DeleteSchedule(ctx context.Context, doctorID, id int64) error
	ListSchedules(ctx context.Context, doctorID int64) ([]Schedule, error)

	BookedSlots(ctx context.Context, doctorID int64, date time.Time) ([]availability.BookedSlot, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	Appointment(ctx context.Context, id int64) (*Appointment, error)
	ListAppointments(ctx context.Context, role Role, userID int64) ([]Appointment, error)
	TransitionAppointment(ctx context.Context, id int64, from, to availability.Status, notes *string) error
	SetAppointmentEvent(ctx context.Context, id int64, eventID string) error

	CreateMedicalRecord(ctx context.Context, r *MedicalRecord) error
	MedicalRecord(ctx context.Context, id int64) (*MedicalRecord, error)
	ListMedicalRecords(ctx context.Context, role Role, userID int64) ([]MedicalRecord, error)
	AddPrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, recordID int64) ([]Prescription, error)

	SaveCalendarToken(ctx context.Context, doctorID int64, token []byte) error
	CalendarToken(ctx context.Context, doctorID int64) ([]byte, error)
}

// Store is the Postgres Repository.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

var _ Repository = (*Store)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	q := `INSERT INTO users (email, password_hash, role, first_name, last_name)
	      VALUES ($1,$2,$3,$4,$5) RETURNING id, is_active, created_at`
	err := s.db.QueryRow(ctx, q, u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName).
		Scan(&u.ID, &u.IsActive, &u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	q := `SELECT id, email, password_hash, role, is_active, COALESCE(first_name,''), COALESCE(last_name,''), created_at
	      FROM users WHERE email=$1`
	var u User
	err := s.db.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.FirstName, &u.LastName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const doctorColumns = `id, email, COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(phone,''),
	COALESCE(specialization,''), COALESCE(license_number,''), COALESCE(qualification,''),
	years_of_experience, COALESCE(bio,''), created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Email, &d.FirstName, &d.LastName, &d.Phone, &d.Specialization,
		&d.LicenseNumber, &d.Qualification, &d.YearsOfExperience, &d.Bio, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) Doctor(ctx context.Context, id int64) (*Doctor, error) {
	q := `SELECT ` + doctorColumns + ` FROM users WHERE id=$1 AND role='DOCTOR' AND is_active`
	d, err := scanDoctor(s.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("doctor")
	}
	return d, err
}

func (s *Store) ListDoctors(ctx context.Context) ([]Doctor, error) {
	q := `SELECT ` + doctorColumns + ` FROM users WHERE role='DOCTOR' AND is_active ORDER BY last_name, first_name, id`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDoctor(ctx context.Context, d *Doctor) error {
	q := `UPDATE users SET first_name=$2, last_name=$3, phone=NULLIF($4,''), specialization=NULLIF($5,''),
	      license_number=NULLIF($6,''), qualification=NULLIF($7,''), years_of_experience=$8, bio=NULLIF($9,''),
	      updated_at=now()
	      WHERE id=$1 AND role='DOCTOR' RETURNING updated_at`
	err := s.db.QueryRow(ctx, q, d.ID, d.FirstName, d.LastName, d.Phone, d.Specialization,
		d.LicenseNumber, d.Qualification, d.YearsOfExperience, d.Bio).Scan(&d.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound("doctor")
	case isUniqueViolation(err):
		return invalid("license number %s is already registered", d.LicenseNumber)
	}
	return err
}

func (s *Store) Patient(ctx context.Context, id int64) (*Patient, error) {
	q := `SELECT id, email, COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(phone,''), date_of_birth,
	      COALESCE(gender,''), COALESCE(address,''), COALESCE(blood_type,''), COALESCE(allergies,''),
	      COALESCE(emergency_contact_name,''), COALESCE(emergency_contact_phone,''),
	      COALESCE(insurance_provider,''), COALESCE(insurance_policy_number,''), created_at, updated_at
	      FROM users WHERE id=$1 AND role='PATIENT'`
	var (
		p   Patient
		dob *time.Time
	)
	err := s.db.QueryRow(ctx, q, id).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Phone, &dob,
		&p.Gender, &p.Address, &p.BloodType, &p.Allergies, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.InsuranceProvider, &p.InsurancePolicyNumber, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("patient")
	}
	if err != nil {
		return nil, err
	}
	if dob != nil {
		d := NewDate(*dob)
		p.DateOfBirth = &d
	}
	return &p, nil
}

func (s *Store) UpdatePatient(ctx context.Context, p *Patient) error {
	var dob *time.Time
	if p.DateOfBirth != nil {
		dob = &p.DateOfBirth.Time
	}
	q := `UPDATE users SET first_name=$2, last_name=$3, phone=NULLIF($4,''), date_of_birth=$5,
	      gender=NULLIF($6,''), address=NULLIF($7,''), blood_type=NULLIF($8,''), allergies=NULLIF($9,''),
	      emergency_contact_name=NULLIF($10,''), emergency_contact_phone=NULLIF($11,''),
	      insurance_provider=NULLIF($12,''), insurance_policy_number=NULLIF($13,''), updated_at=now()
	      WHERE id=$1 AND role='PATIENT' RETURNING updated_at`
	err := s.db.QueryRow(ctx, q, p.ID, p.FirstName, p.LastName, p.Phone, dob, p.Gender, p.Address,
		p.BloodType, p.Allergies, p.EmergencyContactName, p.EmergencyContactPhone,
		p.InsuranceProvider, p.InsurancePolicyNumber).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("patient")
	}
	return err
}

func (s *Store) InsertSchedule(ctx context.Context, sc *Schedule) error {
	// one rule per doctor and weekday
	var existingID int64
	checkQ := `SELECT id FROM doctor_schedules WHERE doctor_id=$1 AND day_of_week=$2 LIMIT 1`
	err := s.db.QueryRow(ctx, checkQ, sc.DoctorID, sc.DayOfWeek).Scan(&existingID)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrScheduleExists, sc.DayOfWeek)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	q := `INSERT INTO doctor_schedules
	      (doctor_id, day_of_week, start_time, end_time, slot_duration_minutes, is_active)
	      VALUES ($1,$2,$3::time,$4::time,$5,$6) RETURNING id, created_at, updated_at`
	err = s.db.QueryRow(ctx, q, sc.DoctorID, sc.DayOfWeek, sc.StartTime.String(), sc.EndTime.String(),
		sc.SlotDurationMinutes, sc.IsActive).Scan(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrScheduleExists, sc.DayOfWeek)
	}
	return err
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *Schedule) error {
	q := `UPDATE doctor_schedules
	      SET day_of_week=$3, start_time=$4::time, end_time=$5::time, slot_duration_minutes=$6, is_active=$7, updated_at=now()
	      WHERE id=$1 AND doctor_id=$2 RETURNING created_at, updated_at`
	err := s.db.QueryRow(ctx, q, sc.ID, sc.DoctorID, sc.DayOfWeek, sc.StartTime.String(), sc.EndTime.String(),
		sc.SlotDurationMinutes, sc.IsActive).Scan(&sc.CreatedAt, &sc.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound("schedule")
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrScheduleExists, sc.DayOfWeek)
	}
	return err
}

func (s *Store) DeleteSchedule(ctx context.Context, doctorID, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM doctor_schedules WHERE id=$1 AND doctor_id=$2`, id, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("schedule")
	}
	return nil
}

func (s *Store) ListSchedules(ctx context.Context, doctorID int64) ([]Schedule, error) {
	q := `SELECT id, doctor_id, day_of_week, to_char(start_time,'HH24:MI'), to_char(end_time,'HH24:MI'),
	      slot_duration_minutes, is_active, created_at, updated_at
	      FROM doctor_schedules WHERE doctor_id=$1 ORDER BY id`
	rows, err := s.db.Query(ctx, q, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Schedule{}
	for rows.Next() {
		var (
			sc         Schedule
			start, end string
		)
		if err := rows.Scan(&sc.ID, &sc.DoctorID, &sc.DayOfWeek, &start, &end,
			&sc.SlotDurationMinutes, &sc.IsActive, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		if sc.StartTime, err = availability.ParseClock(start); err != nil {
			return nil, err
		}
		if sc.EndTime, err = availability.ParseClock(end); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// BookedSlots returns every appointment on the doctor's calendar for date,
// cancelled ones included; the engine decides what blocks.
func (s *Store) BookedSlots(ctx context.Context, doctorID int64, date time.Time) ([]availability.BookedSlot, error) {
	q := `SELECT appointment_date, to_char(start_time,'HH24:MI'), to_char(end_time,'HH24:MI'), status
	      FROM appointments WHERE doctor_id=$1 AND appointment_date=$2 ORDER BY start_time`
	rows, err := s.db.Query(ctx, q, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []availability.BookedSlot{}
	for rows.Next() {
		var (
			b          availability.BookedSlot
			start, end string
		)
		if err := rows.Scan(&b.Date, &start, &end, &b.Status); err != nil {
			return nil, err
		}
		if b.StartTime, err = availability.ParseClock(start); err != nil {
			return nil, err
		}
		if b.EndTime, err = availability.ParseClock(end); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateAppointment inserts a within a transaction that holds the doctor's
// row lock, so concurrent bookings for one doctor are serialized and the
// overlap check sees every committed appointment.
func (s *Store) CreateAppointment(ctx context.Context, a *Appointment) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var doctorID int64
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 AND role='DOCTOR' FOR UPDATE`, a.DoctorID).Scan(&doctorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("doctor")
	}
	if err != nil {
		return err
	}

	var conflictID int64
	conflictQ := `SELECT id FROM appointments
	              WHERE doctor_id=$1 AND appointment_date=$2 AND status <> 'CANCELLED'
	              AND start_time < $4::time AND end_time > $3::time LIMIT 1`
	err = tx.QueryRow(ctx, conflictQ, a.DoctorID, a.Date.Time, a.StartTime.String(), a.EndTime.String()).Scan(&conflictID)
	if err == nil {
		return ErrSlotTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	insertQ := `INSERT INTO appointments
	            (patient_id, doctor_id, appointment_date, start_time, end_time, status, reason)
	            VALUES ($1,$2,$3,$4::time,$5::time,$6,NULLIF($7,'')) RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, insertQ, a.PatientID, a.DoctorID, a.Date.Time, a.StartTime.String(), a.EndTime.String(),
		a.Status, a.Reason).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const appointmentSelect = `SELECT a.id, a.patient_id, a.doctor_id, a.appointment_date,
	to_char(a.start_time,'HH24:MI'), to_char(a.end_time,'HH24:MI'), a.status,
	COALESCE(a.reason,''), COALESCE(a.notes,''), COALESCE(a.google_event_id,''), a.created_at, a.updated_at,
	COALESCE(p.first_name,''), COALESCE(p.last_name,''), p.email, COALESCE(p.phone,''),
	COALESCE(d.first_name,''), COALESCE(d.last_name,''), d.email, COALESCE(d.phone,''), COALESCE(d.specialization,'')
	FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN users d ON d.id = a.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                            Appointment
		date                         time.Time
		start, end                   string
		pFirst, pLast, dFirst, dLast string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &start, &end, &a.Status,
		&a.Reason, &a.Notes, &a.GoogleEventID, &a.CreatedAt, &a.UpdatedAt,
		&pFirst, &pLast, &a.Patient.Email, &a.Patient.Phone,
		&dFirst, &dLast, &a.Doctor.Email, &a.Doctor.Phone, &a.Doctor.Specialization)
	if err != nil {
		return nil, err
	}
	a.Date = NewDate(date)
	if a.StartTime, err = availability.ParseClock(start); err != nil {
		return nil, err
	}
	if a.EndTime, err = availability.ParseClock(end); err != nil {
		return nil, err
	}
	a.Patient.ID = a.PatientID
	a.Patient.Name = fullName(pFirst, pLast)
	a.Doctor.ID = a.DoctorID
	a.Doctor.Name = Doctor{FirstName: dFirst, LastName: dLast}.DisplayName()
	return &a, nil
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

func (s *Store) Appointment(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx, appointmentSelect+` WHERE a.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("appointment")
	}
	return a, err
}

// ListAppointments returns the user's appointments, newest first.
func (s *Store) ListAppointments(ctx context.Context, role Role, userID int64) ([]Appointment, error) {
	column := "a.patient_id"
	if role == RoleDoctor {
		column = "a.doctor_id"
	}
	q := appointmentSelect + ` WHERE ` + column + `=$1 ORDER BY a.appointment_date DESC, a.start_time DESC`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// TransitionAppointment moves an appointment from one status to another.
// It returns ErrStatusConflict when the appointment is no longer in from.
func (s *Store) TransitionAppointment(ctx context.Context, id int64, from, to availability.Status, notes *string) error {
	q := `UPDATE appointments SET status=$3, notes=COALESCE($4, notes), updated_at=now()
	      WHERE id=$1 AND status=$2`
	tag, err := s.db.Exec(ctx, q, id, from, to, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %d is not %s", ErrStatusConflict, id, from)
	}
	return nil
}

func (s *Store) SetAppointmentEvent(ctx context.Context, id int64, eventID string) error {
	_, err := s.db.Exec(ctx, `UPDATE appointments SET google_event_id=NULLIF($2,''), updated_at=now() WHERE id=$1`, id, eventID)
	return err
}

// CreateMedicalRecord inserts r. A second record for the same appointment
// yields ErrRecordExists.
func (s *Store) CreateMedicalRecord(ctx context.Context, r *MedicalRecord) error {
	var followUp *time.Time
	if r.FollowUpDate != nil {
		followUp = &r.FollowUpDate.Time
	}
	q := `INSERT INTO medical_records
	      (patient_id, doctor_id, appointment_id, visit_date, diagnosis, symptoms, notes, follow_up_date)
	      VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8) RETURNING id, created_at, updated_at`
	err := s.db.QueryRow(ctx, q, r.PatientID, r.DoctorID, r.AppointmentID, r.VisitDate.Time,
		r.Diagnosis, r.Symptoms, r.Notes, followUp).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: appointment %d", ErrRecordExists, r.AppointmentID)
	}
	return err
}

const recordSelect = `SELECT r.id, r.patient_id, r.doctor_id, r.appointment_id, r.visit_date,
	COALESCE(r.diagnosis,''), COALESCE(r.symptoms,''), COALESCE(r.notes,''), r.follow_up_date,
	r.created_at, r.updated_at,
	COALESCE(p.first_name,''), COALESCE(p.last_name,''), p.email,
	COALESCE(d.first_name,''), COALESCE(d.last_name,''), d.email, COALESCE(d.specialization,''),
	(SELECT count(*) FROM prescriptions x WHERE x.medical_record_id = r.id)
	FROM medical_records r
	JOIN users p ON p.id = r.patient_id
	JOIN users d ON d.id = r.doctor_id`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var (
		r                            MedicalRecord
		visit                        time.Time
		followUp                     *time.Time
		pFirst, pLast, dFirst, dLast string
	)
	err := row.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.AppointmentID, &visit,
		&r.Diagnosis, &r.Symptoms, &r.Notes, &followUp, &r.CreatedAt, &r.UpdatedAt,
		&pFirst, &pLast, &r.Patient.Email,
		&dFirst, &dLast, &r.Doctor.Email, &r.Doctor.Specialization,
		&r.PrescriptionCount)
	if err != nil {
		return nil, err
	}
	r.VisitDate = NewDate(visit)
	if followUp != nil {
		d := NewDate(*followUp)
		r.FollowUpDate = &d
	}
	r.Patient.ID = r.PatientID
	r.Patient.Name = fullName(pFirst, pLast)
	r.Doctor.ID = r.DoctorID
	r.Doctor.Name = Doctor{FirstName: dFirst, LastName: dLast}.DisplayName()
	return &r, nil
}

func (s *Store) MedicalRecord(ctx context.Context, id int64) (*MedicalRecord, error) {
	r, err := scanRecord(s.db.QueryRow(ctx, recordSelect+` WHERE r.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("medical record")
	}
	return r, err
}

// ListMedicalRecords returns the user's records, most recent visit first.
func (s *Store) ListMedicalRecords(ctx context.Context, role Role, userID int64) ([]MedicalRecord, error) {
	column := "r.patient_id"
	if role == RoleDoctor {
		column = "r.doctor_id"
	}
	q := recordSelect + ` WHERE ` + column + `=$1 ORDER BY r.visit_date DESC, r.id DESC`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MedicalRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) AddPrescription(ctx context.Context, p *Prescription) error {
	q := `INSERT INTO prescriptions
	      (medical_record_id, medication_name, dosage, frequency, duration, instructions)
	      VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,'')) RETURNING id, created_at`
	return s.db.QueryRow(ctx, q, p.MedicalRecordID, p.MedicationName, p.Dosage, p.Frequency,
		p.Duration, p.Instructions).Scan(&p.ID, &p.CreatedAt)
}

func (s *Store) ListPrescriptions(ctx context.Context, recordID int64) ([]Prescription, error) {
	q := `SELECT id, medical_record_id, medication_name, dosage, frequency,
	      COALESCE(duration,''), COALESCE(instructions,''), created_at
	      FROM prescriptions WHERE medical_record_id=$1 ORDER BY id`
	rows, err := s.db.Query(ctx, q, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Prescription{}
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.MedicalRecordID, &p.MedicationName, &p.Dosage, &p.Frequency,
			&p.Duration, &p.Instructions, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SaveCalendarToken(ctx context.Context, doctorID int64, token []byte) error {
	q := `INSERT INTO calendar_tokens (doctor_id, token, updated_at) VALUES ($1,$2,now())
	      ON CONFLICT (doctor_id) DO UPDATE SET token=EXCLUDED.token, updated_at=now()`
	_, err := s.db.Exec(ctx, q, doctorID, token)
	return err
}

func (s *Store) CalendarToken(ctx context.Context, doctorID int64) ([]byte, error) {
	var token []byte
	err := s.db.QueryRow(ctx, `SELECT token FROM calendar_tokens WHERE doctor_id=$1`, doctorID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("calendar token")
	}
	return token, err
}
