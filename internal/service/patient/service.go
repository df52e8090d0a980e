package patient

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/connectmydoc/patient-api/internal/config"
	"github.com/connectmydoc/patient-api/internal/model"
	"github.com/connectmydoc/patient-api/internal/repository"
	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
	"github.com/connectmydoc/patient-api/pkg/messaging"
)

// Domain events published after successful writes.
const (
	EventPatientCreated = "patient.created"
	EventPatientUpdated = "patient.updated"
	EventPatientDeleted = "patient.deleted"
)

type PatientService interface {
	CreatePatient(ctx context.Context, dto *model.PatientDTO) (*model.PatientDTO, error)
	GetPatient(ctx context.Context, id int64) (*model.PatientDTO, error)
	ListPatients(ctx context.Context, pageNumber, pageSize int) (*model.PaginatedResult[*model.PatientDTO], error)
	UpdatePatient(ctx context.Context, id int64, dto *model.PatientDTO) (*model.PatientDTO, error)
	DeletePatient(ctx context.Context, id int64) (bool, error)
}

type Service struct {
	patients    repository.PatientRepository
	addresses   repository.AddressRepository
	guardians   repository.GuardianRepository
	helper      *Helper
	events      messaging.Publisher
	maxPageSize int
	logger      zerolog.Logger
}

func NewService(
	patients repository.PatientRepository,
	addresses repository.AddressRepository,
	guardians repository.GuardianRepository,
	helper *Helper,
	events messaging.Publisher,
	cfg config.PatientsConfig,
	logger zerolog.Logger,
) *Service {
	if events == nil {
		events = messaging.NopPublisher{}
	}
	return &Service{
		patients:    patients,
		addresses:   addresses,
		guardians:   guardians,
		helper:      helper,
		events:      events,
		maxPageSize: cfg.MaxPageSize,
		logger:      logger.With().Str("service", "patient").Logger(),
	}
}

// CreatePatient validates dto, writes the guardian (minors only), the
// address and then the patient. Rows written before a failing step are not
// rolled back.
func (s *Service) CreatePatient(ctx context.Context, dto *model.PatientDTO) (*model.PatientDTO, error) {
	if err := ValidateRequiredFields(dto); err != nil {
		return nil, err
	}
	if err := s.helper.ValidateImage(dto); err != nil {
		return nil, err
	}
	if err := s.checkDoctor(ctx, dto.PreferredDoctorID); err != nil {
		return nil, err
	}

	age := s.helper.CalculateAge(dto.Dob)
	if err := checkAgeRange(age); err != nil {
		return nil, err
	}
	if dto.Age != nil && *dto.Age != age {
		return nil, apperrors.Validationf("age %d does not match date of birth (expected %d)", *dto.Age, age)
	}
	s.stampCreated(dto)

	var guardian *model.Guardian
	if age < model.MinorAgeLimit {
		if err := ValidateGuardian(dto); err != nil {
			return nil, err
		}
		guardian = NewGuardian(dto)
		if err := s.guardians.Create(ctx, guardian); err != nil {
			return nil, storeError("guardian", err)
		}
	}

	address := NewAddress(dto)
	if err := s.addresses.Create(ctx, address); err != nil {
		return nil, storeError("address", err)
	}

	patient, err := MapDTOToEntity(dto, age, address, guardian)
	if err != nil {
		return nil, err
	}
	patient.ID = 0
	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, storeError("patient", err)
	}

	s.logger.Info().Int64("patient_id", patient.ID).Bool("minor", patient.IsMinor()).Msg("patient created")

	out := MapEntityToDTO(patient)
	s.publish(ctx, EventPatientCreated, out)
	return out, nil
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*model.PatientDTO, error) {
	patient, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, storeError("patient", err)
	}
	return s.toDTO(patient), nil
}

// ListPatients returns page pageNumber (1-based) ordered by id, with the
// total number of patients.
func (s *Service) ListPatients(ctx context.Context, pageNumber, pageSize int) (*model.PaginatedResult[*model.PatientDTO], error) {
	if pageNumber < 1 {
		return nil, apperrors.Validation("pageNumber must be at least 1")
	}
	if pageSize < 1 {
		return nil, apperrors.Validation("pageSize must be at least 1")
	}
	if s.maxPageSize > 0 && pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	if pageNumber-1 > math.MaxInt/pageSize {
		return nil, apperrors.Validation("pageNumber is too large")
	}

	patients, err := s.patients.List(ctx, model.Page{Offset: (pageNumber - 1) * pageSize, Limit: pageSize})
	if err != nil {
		return nil, storeError("patients", err)
	}
	total, err := s.patients.Count(ctx)
	if err != nil {
		return nil, storeError("patients", err)
	}

	items := make([]*model.PatientDTO, 0, len(patients))
	for _, p := range patients {
		items = append(items, s.toDTO(p))
	}
	return &model.PaginatedResult[*model.PatientDTO]{
		Items:      items,
		TotalCount: total,
		PageNumber: pageNumber,
		PageSize:   pageSize,
	}, nil
}

// UpdatePatient applies dto to patient id. The guardian handling depends on
// whether the patient was a minor before and after the change.
func (s *Service) UpdatePatient(ctx context.Context, id int64, dto *model.PatientDTO) (*model.PatientDTO, error) {
	if dto == nil {
		return nil, apperrors.Validation("patient details cannot be empty")
	}
	if err := ValidateRequiredFields(dto); err != nil {
		return nil, err
	}
	if err := s.helper.ValidateImage(dto); err != nil {
		return nil, err
	}

	existing, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, storeError("patient", err)
	}
	if err := s.checkDoctor(ctx, dto.PreferredDoctorID); err != nil {
		return nil, err
	}

	newAge := s.helper.CalculateAge(dto.Dob)
	if err := checkAgeRange(newAge); err != nil {
		return nil, err
	}
	wasMinor := existing.IsMinor()
	nowMinor := newAge < model.MinorAgeLimit

	switch {
	case wasMinor && nowMinor:
		guardianID := existing.GuardianID
		if guardianID == nil {
			guardianID = dto.PatientGuardianID
		}
		if guardianID == nil {
			return nil, apperrors.NotFound("guardian", nil)
		}
		guardian, err := s.overwriteGuardian(ctx, *guardianID, dto)
		if err != nil {
			return nil, err
		}
		existing.GuardianID = &guardian.ID
		existing.Guardian = guardian

	case !wasMinor && nowMinor:
		if err := ValidateGuardian(dto); err != nil {
			return nil, err
		}
		guardian := NewGuardian(dto)
		if err := s.guardians.Create(ctx, guardian); err != nil {
			return nil, storeError("guardian", err)
		}
		existing.GuardianID = &guardian.ID
		existing.Guardian = guardian

	case !wasMinor && !nowMinor:
		if existing.GuardianID != nil && dto.PatientGuardianID != nil && *existing.GuardianID == *dto.PatientGuardianID {
			guardian, err := s.overwriteGuardian(ctx, *existing.GuardianID, dto)
			if err != nil {
				return nil, err
			}
			existing.Guardian = guardian
		}
	}

	if dto.PatientAddressID == nil {
		return nil, apperrors.Validation("patient address id is required")
	}
	if *dto.PatientAddressID != existing.AddressID {
		return nil, apperrors.Conflict("address id does not match the patient's address")
	}
	address, err := s.addresses.Get(ctx, existing.AddressID)
	if err != nil {
		return nil, storeError("address", err)
	}
	s.stampModified(dto)
	address.StreetAddress = dto.StreetAddress
	address.City = dto.City
	address.State = dto.State
	address.Country = dto.Country
	address.ZipCode = dto.ZipCode
	address.LastModifiedDate = dto.LastModifiedDate
	address.LastModifiedBy = dto.LastModifiedBy
	if err := s.addresses.Update(ctx, address); err != nil {
		return nil, storeError("address", err)
	}

	image, err := decodeImage(dto.Image)
	if err != nil {
		return nil, err
	}
	existing.Name = dto.PatientName
	existing.Email = dto.Email
	existing.Phone = dto.Phone
	existing.Age = newAge
	existing.Dob = dto.Dob
	existing.Gender = dto.Gender
	existing.PreferredStartTime = dto.PreferredStartTime
	existing.PreferredEndTime = dto.PreferredEndTime
	if !dto.CreatedDate.IsZero() {
		existing.CreatedDate = dto.CreatedDate
	}
	existing.CreatedBy = dto.CreatedBy
	existing.LastModifiedDate = dto.LastModifiedDate
	existing.LastModifiedBy = dto.LastModifiedBy
	existing.PreferredClinicID = dto.PreferredClinicID
	existing.PreferredDoctorID = dto.PreferredDoctorID
	existing.Image = image
	existing.AddressID = address.ID
	existing.Address = address

	if err := s.patients.Update(ctx, existing); err != nil {
		return nil, storeError("patient", err)
	}

	s.logger.Info().
		Int64("patient_id", existing.ID).
		Bool("was_minor", wasMinor).
		Bool("now_minor", nowMinor).
		Msg("patient updated")

	out := MapEntityToDTO(existing)
	s.publish(ctx, EventPatientUpdated, out)
	return out, nil
}

// DeletePatient removes the patient and its guardian. It returns false when
// the patient does not exist.
func (s *Service) DeletePatient(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.patients.Delete(ctx, id)
	if err != nil {
		return false, storeError("patient", err)
	}
	if deleted {
		s.logger.Info().Int64("patient_id", id).Msg("patient deleted")
		s.publish(ctx, EventPatientDeleted, map[string]int64{"patientId": id})
	}
	return deleted, nil
}

func (s *Service) overwriteGuardian(ctx context.Context, id int64, dto *model.PatientDTO) (*model.Guardian, error) {
	guardian, err := s.guardians.Get(ctx, id)
	if err != nil {
		return nil, storeError("guardian", err)
	}
	if err := ValidateGuardian(dto); err != nil {
		return nil, err
	}
	guardian.Name = *dto.PatientGuardianName
	guardian.PhoneNumber = *dto.PatientGuardianPhoneNumber
	guardian.Relationship = *dto.PatientGuardianRelationship
	if err := s.guardians.Update(ctx, guardian); err != nil {
		return nil, storeError("guardian", err)
	}
	return guardian, nil
}

func (s *Service) checkDoctor(ctx context.Context, doctorID int) error {
	ok, err := s.helper.ValidateDoctor(ctx, doctorID)
	if err != nil {
		return err
	}
	if !ok {
		return doctorNotFound(doctorID)
	}
	return nil
}

// toDTO maps a stored patient with its age derived from dob as of today.
func (s *Service) toDTO(p *model.Patient) *model.PatientDTO {
	p.Age = s.helper.CalculateAge(p.Dob)
	return MapEntityToDTO(p)
}

func checkAgeRange(age int) error {
	if age < 0 {
		return apperrors.Validation("date of birth cannot be in the future")
	}
	if age > model.MaxAge {
		return apperrors.Validationf("age %d exceeds the maximum of %d", age, model.MaxAge)
	}
	return nil
}

func (s *Service) stampCreated(dto *model.PatientDTO) {
	if dto.CreatedDate.IsZero() {
		dto.CreatedDate = s.helper.now()
	}
	s.stampModified(dto)
}

func (s *Service) stampModified(dto *model.PatientDTO) {
	if dto.LastModifiedDate.IsZero() {
		dto.LastModifiedDate = s.helper.now()
	}
}

// publish never fails the request; broker errors are only logged.
func (s *Service) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish patient event")
	}
}

func storeError(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Internal(err)
}
