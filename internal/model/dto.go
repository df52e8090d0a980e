package model

import (
	"time"
)

// PatientDTO is the API representation of a patient with its address and
// guardian flattened in.
type PatientDTO struct {
	PatientID          *int64    `json:"patientId,omitempty"`
	PatientName        string    `json:"patientName" binding:"omitempty,min=3,max=100"`
	Email              string    `json:"email" binding:"omitempty,max=100"`
	Phone              string    `json:"phone" binding:"omitempty,min=10,max=15"`
	Age                *int      `json:"age,omitempty" binding:"omitempty,min=0,max=150"`
	Dob                time.Time `json:"dob"`
	Gender             string    `json:"gender" binding:"omitempty,max=20"`
	PreferredStartTime time.Time `json:"preferredStartTime"`
	PreferredEndTime   time.Time `json:"preferredEndTime"`
	CreatedDate        time.Time `json:"createdDate"`
	CreatedBy          int       `json:"createdBy"`
	LastModifiedDate   time.Time `json:"lastModifiedDate"`
	LastModifiedBy     int       `json:"lastModifiedBy"`
	PreferredClinicID  int       `json:"preferredClinicId"`
	Image              *string   `json:"image,omitempty"`

	PatientAddressID *int64 `json:"patientAddressId,omitempty"`
	StreetAddress    string `json:"streetAddress" binding:"omitempty,max=255"`
	City             string `json:"city" binding:"omitempty,max=100"`
	State            string `json:"state" binding:"omitempty,max=100"`
	Country          string `json:"country" binding:"omitempty,max=100"`
	ZipCode          string `json:"zipCode" binding:"omitempty,max=20"`

	PreferredDoctorID int `json:"preferredDoctorId"`

	PatientGuardianID           *int64  `json:"patientGuardianId,omitempty"`
	PatientGuardianName         *string `json:"patientGuardianName,omitempty" binding:"omitempty,max=100"`
	PatientGuardianPhoneNumber  *string `json:"patientGuardianPhoneNumber,omitempty" binding:"omitempty,max=20"`
	PatientGuardianRelationship *string `json:"patientGuardianRelationship,omitempty" binding:"omitempty,max=50"`
}

// PaginatedResult is one page of a listing plus the unpaginated total.
type PaginatedResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}
