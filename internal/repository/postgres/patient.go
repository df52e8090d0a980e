package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/connectmydoc/patient-api/internal/model"
	"github.com/connectmydoc/patient-api/internal/repository"
	"github.com/connectmydoc/patient-api/pkg/metrics"
)

const patientSelect = `
	SELECT p.id, p.name, p.email, p.phone, p.age, p.dob, p.gender,
	       p.preferred_start_time, p.preferred_end_time,
	       p.created_date, p.created_by, p.last_modified_date, p.last_modified_by,
	       p.preferred_clinic_id, p.preferred_doctor_id, p.image,
	       p.address_id, p.guardian_id,
	       a.id AS a_id, a.street_address AS a_street_address, a.city AS a_city,
	       a.state AS a_state, a.country AS a_country, a.zip_code AS a_zip_code,
	       a.created_date AS a_created_date, a.created_by AS a_created_by,
	       a.last_modified_date AS a_last_modified_date, a.last_modified_by AS a_last_modified_by,
	       g.name AS g_name, g.phone_number AS g_phone_number, g.relationship AS g_relationship
	FROM patients p
	LEFT JOIN patient_addresses a ON a.id = p.address_id
	LEFT JOIN patient_guardians g ON g.id = p.guardian_id
`

// patientRow is one patient joined with its address and guardian.
type patientRow struct {
	model.Patient

	AddrID               sql.NullInt64  `db:"a_id"`
	AddrStreet           sql.NullString `db:"a_street_address"`
	AddrCity             sql.NullString `db:"a_city"`
	AddrState            sql.NullString `db:"a_state"`
	AddrCountry          sql.NullString `db:"a_country"`
	AddrZip              sql.NullString `db:"a_zip_code"`
	AddrCreatedDate      sql.NullTime   `db:"a_created_date"`
	AddrCreatedBy        sql.NullInt64  `db:"a_created_by"`
	AddrLastModifiedDate sql.NullTime   `db:"a_last_modified_date"`
	AddrLastModifiedBy   sql.NullInt64  `db:"a_last_modified_by"`

	GuardianName         sql.NullString `db:"g_name"`
	GuardianPhone        sql.NullString `db:"g_phone_number"`
	GuardianRelationship sql.NullString `db:"g_relationship"`
}

func (row *patientRow) toModel() *model.Patient {
	p := row.Patient
	if row.AddrID.Valid {
		p.Address = &model.Address{
			ID:            row.AddrID.Int64,
			StreetAddress: row.AddrStreet.String,
			City:          row.AddrCity.String,
			State:         row.AddrState.String,
			Country:       row.AddrCountry.String,
			ZipCode:       row.AddrZip.String,
			Audit: model.Audit{
				CreatedDate:      row.AddrCreatedDate.Time,
				CreatedBy:        int(row.AddrCreatedBy.Int64),
				LastModifiedDate: row.AddrLastModifiedDate.Time,
				LastModifiedBy:   int(row.AddrLastModifiedBy.Int64),
			},
		}
	}
	if p.GuardianID != nil && row.GuardianName.Valid {
		p.Guardian = &model.Guardian{
			ID:           *p.GuardianID,
			Name:         row.GuardianName.String,
			PhoneNumber:  row.GuardianPhone.String,
			Relationship: row.GuardianRelationship.String,
		}
	}
	return &p
}

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(db *sqlx.DB, m *metrics.Metrics) repository.PatientRepository {
	return &patientRepository{BaseRepository: NewBaseRepository(db, m)}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) (err error) {
	defer r.observe("patient_create", time.Now(), &err)

	query := `
		INSERT INTO patients (
			name, email, phone, age, dob, gender,
			preferred_start_time, preferred_end_time,
			created_date, created_by, last_modified_date, last_modified_by,
			preferred_clinic_id, preferred_doctor_id, image, address_id, guardian_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`
	err = r.db.QueryRowxContext(ctx, query,
		patient.Name,
		patient.Email,
		patient.Phone,
		patient.Age,
		patient.Dob,
		patient.Gender,
		patient.PreferredStartTime,
		patient.PreferredEndTime,
		patient.CreatedDate,
		patient.CreatedBy,
		patient.LastModifiedDate,
		patient.LastModifiedBy,
		patient.PreferredClinicID,
		patient.PreferredDoctorID,
		patient.Image,
		patient.AddressID,
		patient.GuardianID,
	).Scan(&patient.ID)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id int64) (_ *model.Patient, err error) {
	defer r.observe("patient_get", time.Now(), &err)

	var row patientRow
	if err = r.db.GetContext(ctx, &row, patientSelect+` WHERE p.id = $1`, id); err != nil {
		err = notFound(err)
		return nil, fmt.Errorf("failed to get patient %d: %w", id, err)
	}
	return row.toModel(), nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) (err error) {
	defer r.observe("patient_update", time.Now(), &err)

	query := `
		UPDATE patients
		SET name = $1, email = $2, phone = $3, age = $4, dob = $5, gender = $6,
		    preferred_start_time = $7, preferred_end_time = $8,
		    created_date = $9, created_by = $10, last_modified_date = $11, last_modified_by = $12,
		    preferred_clinic_id = $13, preferred_doctor_id = $14, image = $15,
		    address_id = $16, guardian_id = $17
		WHERE id = $18
	`
	res, err := r.db.ExecContext(ctx, query,
		patient.Name,
		patient.Email,
		patient.Phone,
		patient.Age,
		patient.Dob,
		patient.Gender,
		patient.PreferredStartTime,
		patient.PreferredEndTime,
		patient.CreatedDate,
		patient.CreatedBy,
		patient.LastModifiedDate,
		patient.LastModifiedBy,
		patient.PreferredClinicID,
		patient.PreferredDoctorID,
		patient.Image,
		patient.AddressID,
		patient.GuardianID,
		patient.ID,
	)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("failed to update patient %d: %w", patient.ID, err)
	}
	return nil
}

func (r *patientRepository) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	defer r.observe("patient_delete", time.Now(), &err)

	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var guardianID sql.NullInt64
		err := tx.GetContext(ctx, &guardianID, `SELECT guardian_id FROM patients WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id); err != nil {
			return err
		}
		if guardianID.Valid {
			if _, err := tx.ExecContext(ctx, `DELETE FROM patient_guardians WHERE id = $1`, guardianID.Int64); err != nil {
				return err
			}
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete patient %d: %w", id, err)
	}
	return deleted, nil
}

func (r *patientRepository) List(ctx context.Context, page model.Page) (_ []*model.Patient, err error) {
	defer r.observe("patient_list", time.Now(), &err)

	var rows []patientRow
	if err = r.db.SelectContext(ctx, &rows, patientSelect+` ORDER BY p.id LIMIT $1 OFFSET $2`, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	patients := make([]*model.Patient, 0, len(rows))
	for i := range rows {
		patients = append(patients, rows[i].toModel())
	}
	return patients, nil
}

func (r *patientRepository) Count(ctx context.Context) (total int, err error) {
	defer r.observe("patient_count", time.Now(), &err)

	if err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`); err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return total, nil
}

func (r *patientRepository) Exists(ctx context.Context, id int64) (exists bool, err error) {
	defer r.observe("patient_exists", time.Now(), &err)

	if err = r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("failed to check patient %d: %w", id, err)
	}
	return exists, nil
}
