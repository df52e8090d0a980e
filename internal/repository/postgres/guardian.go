package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/connectmydoc/patient-api/internal/model"
	"github.com/connectmydoc/patient-api/internal/repository"
	"github.com/connectmydoc/patient-api/pkg/metrics"
)

type guardianRepository struct {
	BaseRepository
}

func NewGuardianRepository(db *sqlx.DB, m *metrics.Metrics) repository.GuardianRepository {
	return &guardianRepository{BaseRepository: NewBaseRepository(db, m)}
}

func (r *guardianRepository) Create(ctx context.Context, guardian *model.Guardian) (err error) {
	defer r.observe("guardian_create", time.Now(), &err)

	query := `
		INSERT INTO patient_guardians (name, phone_number, relationship)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err = r.db.QueryRowxContext(ctx, query,
		guardian.Name,
		guardian.PhoneNumber,
		guardian.Relationship,
	).Scan(&guardian.ID)
	if err != nil {
		return fmt.Errorf("failed to create guardian: %w", err)
	}
	return nil
}

func (r *guardianRepository) Get(ctx context.Context, id int64) (_ *model.Guardian, err error) {
	defer r.observe("guardian_get", time.Now(), &err)

	var guardian model.Guardian
	err = r.db.GetContext(ctx, &guardian,
		`SELECT id, name, phone_number, relationship FROM patient_guardians WHERE id = $1`, id)
	if err != nil {
		err = notFound(err)
		return nil, fmt.Errorf("failed to get guardian %d: %w", id, err)
	}
	return &guardian, nil
}

func (r *guardianRepository) Update(ctx context.Context, guardian *model.Guardian) (err error) {
	defer r.observe("guardian_update", time.Now(), &err)

	query := `UPDATE patient_guardians SET name = $1, phone_number = $2, relationship = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query,
		guardian.Name,
		guardian.PhoneNumber,
		guardian.Relationship,
		guardian.ID,
	)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("failed to update guardian %d: %w", guardian.ID, err)
	}
	return nil
}

func (r *guardianRepository) Delete(ctx context.Context, id int64) (err error) {
	defer r.observe("guardian_delete", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM patient_guardians WHERE id = $1`, id)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("failed to delete guardian %d: %w", id, err)
	}
	return nil
}
