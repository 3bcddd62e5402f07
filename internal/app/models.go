package app

import (
	"strings"
	"time"

	"medisync/internal/availability"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r != RolePatient && r != RoleDoctor {
		return "", invalid("role must be PATIENT or DOCTOR")
	}
	return r, nil
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Doctor struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Phone             string    `json:"phone,omitempty"`
	Specialization    string    `json:"specialization,omitempty"`
	LicenseNumber     string    `json:"license_number,omitempty"`
	Qualification     string    `json:"qualification,omitempty"`
	YearsOfExperience *int      `json:"years_of_experience,omitempty"`
	Bio               string    `json:"bio,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

func (d Doctor) DisplayName() string {
	return strings.TrimSpace("Dr. " + strings.TrimSpace(d.FirstName+" "+d.LastName))
}

type Patient struct {
	ID                    int64     `json:"id"`
	Email                 string    `json:"email"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	Phone                 string    `json:"phone,omitempty"`
	DateOfBirth           *Date     `json:"date_of_birth,omitempty"`
	Gender                string    `json:"gender,omitempty"`
	Address               string    `json:"address,omitempty"`
	BloodType             string    `json:"blood_type,omitempty"`
	Allergies             string    `json:"allergies,omitempty"`
	EmergencyContactName  string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string    `json:"emergency_contact_phone,omitempty"`
	InsuranceProvider     string    `json:"insurance_provider,omitempty"`
	InsurancePolicyNumber string    `json:"insurance_policy_number,omitempty"`
	CreatedAt             time.Time `json:"created_at,omitempty"`
	UpdatedAt             time.Time `json:"updated_at,omitempty"`
}

// Schedule is a stored WeeklyRule owned by a doctor.
type Schedule struct {
	ID       int64 `json:"id"`
	DoctorID int64 `json:"doctor_id"`
	availability.WeeklyRule
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func rulesOf(schedules []Schedule) []availability.WeeklyRule {
	out := make([]availability.WeeklyRule, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, s.WeeklyRule)
	}
	return out
}

// Party is the short form of the other side of an appointment.
type Party struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

type Appointment struct {
	ID            int64               `json:"id"`
	PatientID     int64               `json:"patient_id"`
	DoctorID      int64               `json:"doctor_id"`
	Date          Date                `json:"appointment_date"`
	StartTime     availability.Clock  `json:"start_time"`
	EndTime       availability.Clock  `json:"end_time"`
	Status        availability.Status `json:"status"`
	Reason        string              `json:"reason,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	GoogleEventID string              `json:"-"`
	Patient       Party               `json:"patient"`
	Doctor        Party               `json:"doctor"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Involves reports whether p is the patient or the doctor on a.
func (a *Appointment) Involves(p Principal) bool {
	switch p.Role {
	case RolePatient:
		return a.PatientID == p.UserID
	case RoleDoctor:
		return a.DoctorID == p.UserID
	}
	return false
}

// MedicalRecord documents one completed visit. Prescriptions is only
// filled when a single record is fetched.
type MedicalRecord struct {
	ID                int64          `json:"id"`
	PatientID         int64          `json:"patient_id"`
	DoctorID          int64          `json:"doctor_id"`
	AppointmentID     int64          `json:"appointment_id"`
	VisitDate         Date           `json:"visit_date"`
	Diagnosis         string         `json:"diagnosis,omitempty"`
	Symptoms          string         `json:"symptoms,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	FollowUpDate      *Date          `json:"follow_up_date,omitempty"`
	Patient           Party          `json:"patient"`
	Doctor            Party          `json:"doctor"`
	PrescriptionCount int            `json:"prescription_count"`
	Prescriptions     []Prescription `json:"prescriptions,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (r *MedicalRecord) Involves(p Principal) bool {
	switch p.Role {
	case RolePatient:
		return r.PatientID == p.UserID
	case RoleDoctor:
		return r.DoctorID == p.UserID
	}
	return false
}

type Prescription struct {
	ID              int64     `json:"id"`
	MedicalRecordID int64     `json:"medical_record_id"`
	MedicationName  string    `json:"medication_name"`
	Dosage          string    `json:"dosage"`
	Frequency       string    `json:"frequency"`
	Duration        string    `json:"duration,omitempty"`
	Instructions    string    `json:"instructions,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD. It is always held as
// UTC midnight, whichever zone the date was read in.
type Date struct {
	time.Time
}

// NewDate keeps the calendar date of t as seen in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, invalid("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON shadows the embedded time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	return d.UnmarshalText([]byte(s))
}
