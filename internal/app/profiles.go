package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type doctorProfileReq struct {
	FirstName         *string `json:"first_name" binding:"omitempty,min=1,max=50"`
	LastName          *string `json:"last_name" binding:"omitempty,min=1,max=50"`
	Phone             *string `json:"phone" binding:"omitempty,numeric,min=10,max=20"`
	Specialization    *string `json:"specialization" binding:"omitempty,max=100"`
	LicenseNumber     *string `json:"license_number" binding:"omitempty,max=50"`
	Qualification     *string `json:"qualification" binding:"omitempty,max=200"`
	YearsOfExperience *int    `json:"years_of_experience" binding:"omitempty,min=0,max=80"`
	Bio               *string `json:"bio" binding:"omitempty,max=1000"`
}

// apply overwrites only the fields present in the request.
func (r doctorProfileReq) apply(d *Doctor) {
	set(&d.FirstName, r.FirstName)
	set(&d.LastName, r.LastName)
	set(&d.Phone, r.Phone)
	set(&d.Specialization, r.Specialization)
	set(&d.LicenseNumber, r.LicenseNumber)
	set(&d.Qualification, r.Qualification)
	set(&d.Bio, r.Bio)
	if r.YearsOfExperience != nil {
		d.YearsOfExperience = r.YearsOfExperience
	}
}

type patientProfileReq struct {
	FirstName             *string `json:"first_name" binding:"omitempty,min=1,max=50"`
	LastName              *string `json:"last_name" binding:"omitempty,min=1,max=50"`
	Phone                 *string `json:"phone" binding:"omitempty,numeric,min=10,max=20"`
	DateOfBirth           *string `json:"date_of_birth"`
	Gender                *string `json:"gender" binding:"omitempty,max=10"`
	Address               *string `json:"address" binding:"omitempty,max=255"`
	BloodType             *string `json:"blood_type" binding:"omitempty,max=5"`
	Allergies             *string `json:"allergies" binding:"omitempty,max=500"`
	EmergencyContactName  *string `json:"emergency_contact_name" binding:"omitempty,max=100"`
	EmergencyContactPhone *string `json:"emergency_contact_phone" binding:"omitempty,numeric,min=10,max=20"`
	InsuranceProvider     *string `json:"insurance_provider" binding:"omitempty,max=100"`
	InsurancePolicyNumber *string `json:"insurance_policy_number" binding:"omitempty,max=50"`
}

func (r patientProfileReq) apply(p *Patient, today Date) error {
	if r.DateOfBirth != nil {
		if *r.DateOfBirth == "" {
			p.DateOfBirth = nil
		} else {
			dob, err := ParseDate(*r.DateOfBirth)
			if err != nil {
				return err
			}
			if !dob.Before(today.Time) {
				return invalid("date of birth must be in the past")
			}
			p.DateOfBirth = &dob
		}
	}
	set(&p.FirstName, r.FirstName)
	set(&p.LastName, r.LastName)
	set(&p.Phone, r.Phone)
	set(&p.Gender, r.Gender)
	set(&p.Address, r.Address)
	set(&p.BloodType, r.BloodType)
	set(&p.Allergies, r.Allergies)
	set(&p.EmergencyContactName, r.EmergencyContactName)
	set(&p.EmergencyContactPhone, r.EmergencyContactPhone)
	set(&p.InsuranceProvider, r.InsuranceProvider)
	set(&p.InsurancePolicyNumber, r.InsurancePolicyNumber)
	return nil
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// GET /api/doctors
func (a *App) ListDoctorsHandler(c *gin.Context) {
	doctors, err := a.Repo.ListDoctors(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}

// GET /api/doctors/profile
func (a *App) GetDoctorProfileHandler(c *gin.Context) {
	d, err := a.Repo.Doctor(c.Request.Context(), principal(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// PUT /api/doctors/profile
func (a *App) UpdateDoctorProfileHandler(c *gin.Context) {
	var req doctorProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	d, err := a.Repo.Doctor(ctx, principal(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	req.apply(d)
	if err := a.Repo.UpdateDoctor(ctx, d); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/patients/profile
func (a *App) GetPatientProfileHandler(c *gin.Context) {
	p, err := a.Repo.Patient(c.Request.Context(), principal(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PUT /api/patients/profile
func (a *App) UpdatePatientProfileHandler(c *gin.Context) {
	var req patientProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	p, err := a.Repo.Patient(ctx, principal(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	if err := req.apply(p, a.today()); err != nil {
		a.fail(c, err)
		return
	}
	if err := a.Repo.UpdatePatient(ctx, p); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
