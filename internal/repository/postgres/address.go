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

type addressRepository struct {
	BaseRepository
}

func NewAddressRepository(db *sqlx.DB, m *metrics.Metrics) repository.AddressRepository {
	return &addressRepository{BaseRepository: NewBaseRepository(db, m)}
}

func (r *addressRepository) Create(ctx context.Context, address *model.Address) (err error) {
	defer r.observe("address_create", time.Now(), &err)

	query := `
		INSERT INTO patient_addresses (
			street_address, city, state, country, zip_code,
			created_date, created_by, last_modified_date, last_modified_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = r.db.QueryRowxContext(ctx, query,
		address.StreetAddress,
		address.City,
		address.State,
		address.Country,
		address.ZipCode,
		address.CreatedDate,
		address.CreatedBy,
		address.LastModifiedDate,
		address.LastModifiedBy,
	).Scan(&address.ID)
	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}

func (r *addressRepository) Get(ctx context.Context, id int64) (_ *model.Address, err error) {
	defer r.observe("address_get", time.Now(), &err)

	query := `
		SELECT id, street_address, city, state, country, zip_code,
		       created_date, created_by, last_modified_date, last_modified_by
		FROM patient_addresses WHERE id = $1
	`
	var address model.Address
	if err = r.db.GetContext(ctx, &address, query, id); err != nil {
		err = notFound(err)
		return nil, fmt.Errorf("failed to get address %d: %w", id, err)
	}
	return &address, nil
}

func (r *addressRepository) Update(ctx context.Context, address *model.Address) (err error) {
	defer r.observe("address_update", time.Now(), &err)

	query := `
		UPDATE patient_addresses
		SET street_address = $1, city = $2, state = $3, country = $4, zip_code = $5,
		    last_modified_date = $6, last_modified_by = $7
		WHERE id = $8
	`
	res, err := r.db.ExecContext(ctx, query,
		address.StreetAddress,
		address.City,
		address.State,
		address.Country,
		address.ZipCode,
		address.LastModifiedDate,
		address.LastModifiedBy,
		address.ID,
	)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("failed to update address %d: %w", address.ID, err)
	}
	return nil
}

func (r *addressRepository) Delete(ctx context.Context, id int64) (err error) {
	defer r.observe("address_delete", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM patient_addresses WHERE id = $1`, id)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("failed to delete address %d: %w", id, err)
	}
	return nil
}
