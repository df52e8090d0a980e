package model

import (
	"time"
)

// MinorAgeLimit is the age below which a patient needs a guardian.
const MinorAgeLimit = 18

// MaxAge is the oldest age the patients table accepts.
const MaxAge = 150

type Patient struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Email              string    `db:"email" json:"email"`
	Phone              string    `db:"phone" json:"phone"`
	Age                int       `db:"age" json:"age"`
	Dob                time.Time `db:"dob" json:"dob"`
	Gender             string    `db:"gender" json:"gender"`
	PreferredStartTime time.Time `db:"preferred_start_time" json:"preferredStartTime"`
	PreferredEndTime   time.Time `db:"preferred_end_time" json:"preferredEndTime"`
	Audit
	PreferredClinicID int    `db:"preferred_clinic_id" json:"preferredClinicId"`
	PreferredDoctorID int    `db:"preferred_doctor_id" json:"preferredDoctorId"`
	Image             []byte `db:"image" json:"-"`
	AddressID         int64  `db:"address_id" json:"addressId"`
	GuardianID        *int64 `db:"guardian_id" json:"guardianId,omitempty"`

	// Loaded by joined reads, never written through the patient row.
	Address  *Address  `db:"-" json:"address,omitempty"`
	Guardian *Guardian `db:"-" json:"guardian,omitempty"`
}

// IsMinor reports whether the stored age requires a guardian.
func (p *Patient) IsMinor() bool {
	return p.Age < MinorAgeLimit
}

type Address struct {
	ID            int64  `db:"id" json:"id"`
	StreetAddress string `db:"street_address" json:"streetAddress"`
	City          string `db:"city" json:"city"`
	State         string `db:"state" json:"state"`
	Country       string `db:"country" json:"country"`
	ZipCode       string `db:"zip_code" json:"zipCode"`
	Audit
}

type Guardian struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	PhoneNumber  string `db:"phone_number" json:"phoneNumber"`
	Relationship string `db:"relationship" json:"relationship"`
}
