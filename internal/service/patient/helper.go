package patient

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/connectmydoc/patient-api/internal/doctor"
	"github.com/connectmydoc/patient-api/internal/model"
	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
)

var emailPattern = regexp.MustCompile(`(?i)^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Helper holds the validation and mapping rules shared by the patient
// workflows.
type Helper struct {
	doctors       doctor.Directory
	maxImageBytes int
	now           func() time.Time
}

// NewHelper returns a Helper. maxImageBytes <= 0 disables the image size
// check; a nil now uses time.Now.
func NewHelper(doctors doctor.Directory, maxImageBytes int, now func() time.Time) *Helper {
	if now == nil {
		now = time.Now
	}
	return &Helper{doctors: doctors, maxImageBytes: maxImageBytes, now: now}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateRequiredFields reports the first missing or malformed field.
func ValidateRequiredFields(dto *model.PatientDTO) error {
	switch {
	case dto == nil:
		return apperrors.Validation("patient details cannot be empty")
	case blank(dto.PatientName):
		return apperrors.Validation("patient name is required")
	case blank(dto.Email):
		return apperrors.Validation("email is required")
	case !emailPattern.MatchString(dto.Email):
		return apperrors.Validation("email format is invalid")
	case blank(dto.Phone):
		return apperrors.Validation("phone is required")
	case dto.Dob.IsZero():
		return apperrors.Validation("date of birth is required")
	case blank(dto.Gender):
		return apperrors.Validation("gender is required")
	case dto.PreferredStartTime.IsZero():
		return apperrors.Validation("preferred start time is required")
	case dto.PreferredEndTime.IsZero():
		return apperrors.Validation("preferred end time is required")
	case !dto.PreferredStartTime.Before(dto.PreferredEndTime):
		return apperrors.Validation("preferred start time must be before preferred end time")
	case dto.CreatedBy <= 0:
		return apperrors.Validation("createdBy must be positive")
	case dto.LastModifiedBy <= 0:
		return apperrors.Validation("lastModifiedBy must be positive")
	case blank(dto.StreetAddress):
		return apperrors.Validation("street address is required")
	case dto.PreferredClinicID <= 0:
		return apperrors.Validation("preferred clinic id must be positive")
	case dto.PreferredDoctorID <= 0:
		return apperrors.Validation("preferred doctor id must be positive")
	case blank(dto.State):
		return apperrors.Validation("state is required")
	case blank(dto.City):
		return apperrors.Validation("city is required")
	case blank(dto.Country):
		return apperrors.Validation("country is required")
	case blank(dto.ZipCode):
		return apperrors.Validation("zip code is required")
	}
	return nil
}

// ValidateGuardian checks the guardian fields a minor must carry.
func ValidateGuardian(dto *model.PatientDTO) error {
	switch {
	case dto.PatientGuardianName == nil || blank(*dto.PatientGuardianName):
		return apperrors.Validation("guardian name is required for patients under 18")
	case dto.PatientGuardianPhoneNumber == nil || blank(*dto.PatientGuardianPhoneNumber):
		return apperrors.Validation("guardian phone number is required for patients under 18")
	case dto.PatientGuardianRelationship == nil || blank(*dto.PatientGuardianRelationship):
		return apperrors.Validation("guardian relationship is required for patients under 18")
	}
	return nil
}

// CalculateAge returns the whole years between dob and today, comparing
// calendar dates only.
func (h *Helper) CalculateAge(dob time.Time) int {
	return ageOn(dob, h.now())
}

func ageOn(dob, today time.Time) int {
	age := today.Year() - dob.Year()

	month, day := dob.Month(), dob.Day()
	if month == time.February && day == 29 && !isLeap(today.Year()) {
		day = 28
	}
	if today.Month() < month || (today.Month() == month && today.Day() < day) {
		age--
	}
	return age
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ValidateDoctor asks the doctor directory whether the id exists.
func (h *Helper) ValidateDoctor(ctx context.Context, doctorID int) (bool, error) {
	return h.doctors.Exists(ctx, doctorID)
}

// ValidateImage checks that an attached image is base64 and within the size
// limit. No image is valid.
func (h *Helper) ValidateImage(dto *model.PatientDTO) error {
	if dto.Image == nil || *dto.Image == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(*dto.Image)
	if err != nil {
		return apperrors.Validation("image is not valid base64")
	}
	if h.maxImageBytes > 0 && len(raw) > h.maxImageBytes {
		return apperrors.Validationf("image exceeds the %d byte limit", h.maxImageBytes)
	}
	return nil
}

// NewAddress builds an address row from the flattened DTO fields.
func NewAddress(dto *model.PatientDTO) *model.Address {
	return &model.Address{
		StreetAddress: dto.StreetAddress,
		City:          dto.City,
		State:         dto.State,
		Country:       dto.Country,
		ZipCode:       dto.ZipCode,
		Audit: model.Audit{
			CreatedDate:      dto.CreatedDate,
			CreatedBy:        dto.CreatedBy,
			LastModifiedDate: dto.LastModifiedDate,
			LastModifiedBy:   dto.LastModifiedBy,
		},
	}
}

func NewGuardian(dto *model.PatientDTO) *model.Guardian {
	return &model.Guardian{
		Name:         deref(dto.PatientGuardianName),
		PhoneNumber:  deref(dto.PatientGuardianPhoneNumber),
		Relationship: deref(dto.PatientGuardianRelationship),
	}
}

// MapDTOToEntity builds a patient row. The guardian link is only set for
// minors.
func MapDTOToEntity(dto *model.PatientDTO, age int, address *model.Address, guardian *model.Guardian) (*model.Patient, error) {
	image, err := decodeImage(dto.Image)
	if err != nil {
		return nil, err
	}

	p := &model.Patient{
		Name:               dto.PatientName,
		Email:              dto.Email,
		Phone:              dto.Phone,
		Age:                age,
		Dob:                dto.Dob,
		Gender:             dto.Gender,
		PreferredStartTime: dto.PreferredStartTime,
		PreferredEndTime:   dto.PreferredEndTime,
		Audit: model.Audit{
			CreatedDate:      dto.CreatedDate,
			CreatedBy:        dto.CreatedBy,
			LastModifiedDate: dto.LastModifiedDate,
			LastModifiedBy:   dto.LastModifiedBy,
		},
		PreferredClinicID: dto.PreferredClinicID,
		PreferredDoctorID: dto.PreferredDoctorID,
		Image:             image,
	}
	if dto.PatientID != nil {
		p.ID = *dto.PatientID
	}
	if address != nil {
		p.AddressID = address.ID
		p.Address = address
	} else if dto.PatientAddressID != nil {
		p.AddressID = *dto.PatientAddressID
	}

	if p.IsMinor() {
		p.GuardianID = dto.PatientGuardianID
		if guardian != nil {
			id := guardian.ID
			p.GuardianID = &id
			p.Guardian = guardian
		}
	}
	return p, nil
}

// MapEntityToDTO flattens a patient with its joined address and guardian.
func MapEntityToDTO(p *model.Patient) *model.PatientDTO {
	id := p.ID
	age := p.Age
	addressID := p.AddressID

	dto := &model.PatientDTO{
		PatientID:          &id,
		PatientName:        p.Name,
		Email:              p.Email,
		Phone:              p.Phone,
		Age:                &age,
		Dob:                p.Dob,
		Gender:             p.Gender,
		PreferredStartTime: p.PreferredStartTime,
		PreferredEndTime:   p.PreferredEndTime,
		CreatedDate:        p.CreatedDate,
		CreatedBy:          p.CreatedBy,
		LastModifiedDate:   p.LastModifiedDate,
		LastModifiedBy:     p.LastModifiedBy,
		PreferredClinicID:  p.PreferredClinicID,
		PatientAddressID:   &addressID,
		PreferredDoctorID:  p.PreferredDoctorID,
	}
	if p.Image != nil {
		encoded := base64.StdEncoding.EncodeToString(p.Image)
		dto.Image = &encoded
	}
	if p.Address != nil {
		dto.StreetAddress = p.Address.StreetAddress
		dto.City = p.Address.City
		dto.State = p.Address.State
		dto.Country = p.Address.Country
		dto.ZipCode = p.Address.ZipCode
	}

	if p.IsMinor() || p.GuardianID != nil {
		if p.GuardianID != nil {
			guardianID := *p.GuardianID
			dto.PatientGuardianID = &guardianID
		}
		if p.Guardian != nil {
			dto.PatientGuardianName = strPtr(p.Guardian.Name)
			dto.PatientGuardianPhoneNumber = strPtr(p.Guardian.PhoneNumber)
			dto.PatientGuardianRelationship = strPtr(p.Guardian.Relationship)
		}
	}
	return dto
}

func decodeImage(image *string) ([]byte, error) {
	if image == nil || *image == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(*image)
	if err != nil {
		return nil, apperrors.Validation("image is not valid base64")
	}
	return raw, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	return &s
}

func doctorNotFound(doctorID int) error {
	return apperrors.Validationf("doctor not found: %d", doctorID)
}
