package repository

import (
	"context"
	"errors"

	"github.com/connectmydoc/patient-api/internal/model"
)

// ErrNotFound is returned by stores when the requested row does not exist.
// Every other error is a storage failure.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// AddressRepository persists postal addresses owned by patients
	AddressRepository interface {
		Create(ctx context.Context, address *model.Address) error
		Get(ctx context.Context, id int64) (*model.Address, error)
		Update(ctx context.Context, address *model.Address) error
		Delete(ctx context.Context, id int64) error
	}

	// GuardianRepository persists guardians linked to minors
	GuardianRepository interface {
		Create(ctx context.Context, guardian *model.Guardian) error
		Get(ctx context.Context, id int64) (*model.Guardian, error)
		Update(ctx context.Context, guardian *model.Guardian) error
		Delete(ctx context.Context, id int64) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		// Get loads the patient with its address and guardian joined in.
		Get(ctx context.Context, id int64) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		// Delete removes the patient and its guardian. It returns false when
		// no patient had that id.
		Delete(ctx context.Context, id int64) (bool, error)
		List(ctx context.Context, page model.Page) ([]*model.Patient, error)
		Count(ctx context.Context) (int, error)
		Exists(ctx context.Context, id int64) (bool, error)
	}
)
