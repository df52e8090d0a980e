package patient

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectmydoc/patient-api/internal/config"
	"github.com/connectmydoc/patient-api/internal/model"
	"github.com/connectmydoc/patient-api/internal/repository"
	apperrors "github.com/connectmydoc/patient-api/pkg/errors"
)

// memStore backs the three store fakes with maps.
type memStore struct {
	nextID    int64
	patients  map[int64]model.Patient
	addresses map[int64]model.Address
	guardians map[int64]model.Guardian
}

func newMemStore() *memStore {
	return &memStore{
		patients:  map[int64]model.Patient{},
		addresses: map[int64]model.Address{},
		guardians: map[int64]model.Guardian{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type fakePatients struct{ *memStore }

func (f fakePatients) Create(_ context.Context, p *model.Patient) error {
	p.ID = f.id()
	row := *p
	row.Address, row.Guardian = nil, nil
	f.patients[p.ID] = row
	return nil
}

func (f fakePatients) Get(_ context.Context, id int64) (*model.Patient, error) {
	row, ok := f.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a, ok := f.addresses[row.AddressID]; ok {
		row.Address = &a
	}
	if row.GuardianID != nil {
		if g, ok := f.guardians[*row.GuardianID]; ok {
			row.Guardian = &g
		}
	}
	return &row, nil
}

func (f fakePatients) Update(_ context.Context, p *model.Patient) error {
	if _, ok := f.patients[p.ID]; !ok {
		return repository.ErrNotFound
	}
	row := *p
	row.Address, row.Guardian = nil, nil
	f.patients[p.ID] = row
	return nil
}

func (f fakePatients) Delete(_ context.Context, id int64) (bool, error) {
	row, ok := f.patients[id]
	if !ok {
		return false, nil
	}
	delete(f.patients, id)
	if row.GuardianID != nil {
		delete(f.guardians, *row.GuardianID)
	}
	return true, nil
}

func (f fakePatients) List(ctx context.Context, page model.Page) ([]*model.Patient, error) {
	ids := make([]int64, 0, len(f.patients))
	for id := range f.patients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []*model.Patient{}
	for i := page.Offset; i < len(ids) && len(out) < page.Limit; i++ {
		p, _ := f.Get(ctx, ids[i])
		out = append(out, p)
	}
	return out, nil
}

func (f fakePatients) Count(context.Context) (int, error) {
	return len(f.patients), nil
}

func (f fakePatients) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := f.patients[id]
	return ok, nil
}

type fakeAddresses struct{ *memStore }

func (f fakeAddresses) Create(_ context.Context, a *model.Address) error {
	a.ID = f.id()
	f.addresses[a.ID] = *a
	return nil
}

func (f fakeAddresses) Get(_ context.Context, id int64) (*model.Address, error) {
	a, ok := f.addresses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f fakeAddresses) Update(_ context.Context, a *model.Address) error {
	if _, ok := f.addresses[a.ID]; !ok {
		return repository.ErrNotFound
	}
	f.addresses[a.ID] = *a
	return nil
}

func (f fakeAddresses) Delete(_ context.Context, id int64) error {
	delete(f.addresses, id)
	return nil
}

type fakeGuardians struct{ *memStore }

func (f fakeGuardians) Create(_ context.Context, g *model.Guardian) error {
	g.ID = f.id()
	f.guardians[g.ID] = *g
	return nil
}

func (f fakeGuardians) Get(_ context.Context, id int64) (*model.Guardian, error) {
	g, ok := f.guardians[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

func (f fakeGuardians) Update(_ context.Context, g *model.Guardian) error {
	if _, ok := f.guardians[g.ID]; !ok {
		return repository.ErrNotFound
	}
	f.guardians[g.ID] = *g
	return nil
}

func (f fakeGuardians) Delete(_ context.Context, id int64) error {
	delete(f.guardians, id)
	return nil
}

type recordingPublisher struct {
	events []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	p.events = append(p.events, eventType)
	return p.err
}

type fixture struct {
	svc     *Service
	store   *memStore
	doctors *stubDirectory
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	doctors := &stubDirectory{known: map[int]bool{8: true}}
	events := &recordingPublisher{}
	svc := NewService(
		fakePatients{store},
		fakeAddresses{store},
		fakeGuardians{store},
		NewHelper(doctors, 1<<20, clock),
		events,
		config.PatientsConfig{DefaultPageSize: 20, MaxPageSize: 100},
		zerolog.Nop(),
	)
	return &fixture{svc: svc, store: store, doctors: doctors, events: events}
}

func (f *fixture) create(t *testing.T, dto *model.PatientDTO) *model.PatientDTO {
	t.Helper()
	out, err := f.svc.CreatePatient(context.Background(), dto)
	require.NoError(t, err)
	return out
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, code), "unexpected error: %v", err)
}

func TestCreatePatientAdult(t *testing.T) {
	f := newFixture(t)

	out := f.create(t, validDTO())

	require.NotNil(t, out.PatientID)
	require.NotNil(t, out.Age)
	assert.Equal(t, 33, *out.Age)
	assert.Nil(t, out.PatientGuardianID)
	require.NotNil(t, out.PatientAddressID)
	assert.Equal(t, "Shelbyville", out.City)
	assert.Equal(t, fixedNow, out.CreatedDate)
	assert.Equal(t, fixedNow, out.LastModifiedDate)

	assert.Len(t, f.store.addresses, 1)
	assert.Empty(t, f.store.guardians)
	assert.Equal(t, []string{EventPatientCreated}, f.events.events)
}

func TestCreatePatientMinorCreatesGuardian(t *testing.T) {
	f := newFixture(t)

	out := f.create(t, minorDTO())

	assert.Equal(t, 13, *out.Age)
	require.NotNil(t, out.PatientGuardianID)
	assert.Equal(t, "Jane Doe", *out.PatientGuardianName)

	stored := f.store.patients[*out.PatientID]
	require.NotNil(t, stored.GuardianID)
	assert.Equal(t, *out.PatientGuardianID, *stored.GuardianID)
	assert.Len(t, f.store.guardians, 1)
}

func TestCreatePatientMinorWithoutGuardianFails(t *testing.T) {
	f := newFixture(t)
	dto := minorDTO()
	dto.PatientGuardianName = nil

	_, err := f.svc.CreatePatient(context.Background(), dto)
	assertCode(t, err, apperrors.ErrValidation)
	assert.Empty(t, f.store.patients)
	assert.Empty(t, f.store.addresses)
	assert.Empty(t, f.events.events)
}

func TestCreatePatientAgeMismatch(t *testing.T) {
	f := newFixture(t)
	dto := validDTO()
	age := 40
	dto.Age = &age

	_, err := f.svc.CreatePatient(context.Background(), dto)
	assertCode(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "does not match date of birth")
}

func TestCreatePatientRejectsAgeOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		dto     func() *model.PatientDTO
		message string
	}{
		{
			name: "future dob",
			dto: func() *model.PatientDTO {
				dto := minorDTO()
				dto.Dob = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
				return dto
			},
			message: "date of birth cannot be in the future",
		},
		{
			name: "older than max age",
			dto: func() *model.PatientDTO {
				dto := validDTO()
				dto.Dob = time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC)
				return dto
			},
			message: "age 224 exceeds the maximum of 150",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.CreatePatient(context.Background(), tt.dto())
			assertCode(t, err, apperrors.ErrValidation)
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, f.store.patients)
			assert.Empty(t, f.store.guardians)
			assert.Empty(t, f.store.addresses)
		})
	}
}

func TestCreatePatientDoctorChecks(t *testing.T) {
	t.Run("unknown doctor", func(t *testing.T) {
		f := newFixture(t)
		dto := validDTO()
		dto.PreferredDoctorID = 99

		_, err := f.svc.CreatePatient(context.Background(), dto)
		assertCode(t, err, apperrors.ErrValidation)
		assert.Contains(t, err.Error(), "doctor not found")
	})

	t.Run("directory failure", func(t *testing.T) {
		f := newFixture(t)
		f.doctors.err = apperrors.ExternalService("doctor directory", errors.New("status 500"))

		_, err := f.svc.CreatePatient(context.Background(), validDTO())
		assertCode(t, err, apperrors.ErrExternalService)
		assert.Empty(t, f.store.addresses)
	})
}

func TestCreatePatientPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("redis down")

	out, err := f.svc.CreatePatient(context.Background(), validDTO())
	require.NoError(t, err)
	assert.NotNil(t, out.PatientID)
}

func TestGetPatient(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, minorDTO())

	got, err := f.svc.GetPatient(context.Background(), *created.PatientID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = f.svc.GetPatient(context.Background(), 999)
	assertCode(t, err, apperrors.ErrNotFound)
}

func TestUpdateMinorStaysMinorUpdatesGuardianInPlace(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, minorDTO())

	dto := minorDTO()
	dto.PatientAddressID = created.PatientAddressID
	dto.PatientGuardianID = created.PatientGuardianID
	dto.PatientGuardianName = strPtr("John Doe")
	dto.PatientGuardianRelationship = strPtr("Father")

	out, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	require.NoError(t, err)

	assert.Equal(t, *created.PatientGuardianID, *out.PatientGuardianID)
	assert.Equal(t, "John Doe", *out.PatientGuardianName)
	require.Len(t, f.store.guardians, 1)
	assert.Equal(t, "Father", f.store.guardians[*created.PatientGuardianID].Relationship)
	assert.Equal(t, []string{EventPatientCreated, EventPatientUpdated}, f.events.events)
}

func TestUpdateMinorStaysMinorMissingGuardian(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, minorDTO())
	delete(f.store.guardians, *created.PatientGuardianID)

	dto := minorDTO()
	dto.PatientAddressID = created.PatientAddressID
	dto.PatientGuardianID = created.PatientGuardianID

	_, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	assertCode(t, err, apperrors.ErrNotFound)
}

func TestUpdateAdultBecomesMinorCreatesGuardian(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, validDTO())

	dto := minorDTO()
	dto.PatientAddressID = created.PatientAddressID

	out, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	require.NoError(t, err)

	assert.Equal(t, 13, *out.Age)
	require.NotNil(t, out.PatientGuardianID)
	assert.Equal(t, "Jane Doe", *out.PatientGuardianName)
	stored := f.store.patients[*created.PatientID]
	require.NotNil(t, stored.GuardianID)
	assert.Equal(t, *out.PatientGuardianID, *stored.GuardianID)
}

func TestUpdateAdultBecomesMinorWithoutGuardianFails(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, validDTO())

	dto := minorDTO()
	dto.PatientAddressID = created.PatientAddressID
	dto.PatientGuardianPhoneNumber = nil

	_, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	assertCode(t, err, apperrors.ErrValidation)
	assert.Empty(t, f.store.guardians)
}

func TestUpdateMinorBecomesAdultKeepsGuardianLink(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, minorDTO())

	dto := validDTO()
	dto.PatientAddressID = created.PatientAddressID

	out, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	require.NoError(t, err)

	assert.Equal(t, 33, *out.Age)
	require.NotNil(t, out.PatientGuardianID)
	assert.Equal(t, *created.PatientGuardianID, *out.PatientGuardianID)
	assert.Equal(t, "Jane Doe", f.store.guardians[*created.PatientGuardianID].Name)
}

func TestUpdateAdultWithMatchingGuardianOverwritesIt(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, minorDTO())

	// Age the patient past 18 while keeping the guardian link.
	adult := validDTO()
	adult.PatientAddressID = created.PatientAddressID
	_, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, adult)
	require.NoError(t, err)

	dto := validDTO()
	dto.PatientAddressID = created.PatientAddressID
	dto.PatientGuardianID = created.PatientGuardianID
	dto.PatientGuardianName = strPtr("Jane Roe")
	dto.PatientGuardianPhoneNumber = strPtr("5559876543")
	dto.PatientGuardianRelationship = strPtr("Emergency contact")

	out, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", *out.PatientGuardianName)
	assert.Equal(t, "Emergency contact", f.store.guardians[*created.PatientGuardianID].Relationship)
}

func TestUpdateAddressChecks(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, validDTO())

	dto := validDTO()
	_, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	assertCode(t, err, apperrors.ErrValidation)

	other := *created.PatientAddressID + 100
	dto.PatientAddressID = &other
	_, err = f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	assertCode(t, err, apperrors.ErrConflict)

	delete(f.store.addresses, *created.PatientAddressID)
	dto.PatientAddressID = created.PatientAddressID
	_, err = f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	assertCode(t, err, apperrors.ErrNotFound)
}

func TestUpdateRewritesAddressAndFields(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, validDTO())

	dto := validDTO()
	dto.PatientAddressID = created.PatientAddressID
	dto.PatientName = "Ann Smith"
	dto.City = "Capital City"
	dto.LastModifiedBy = 7
	dto.LastModifiedDate = fixedNow.Add(time.Hour)

	out, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
	require.NoError(t, err)

	assert.Equal(t, "Ann Smith", out.PatientName)
	assert.Equal(t, "Capital City", out.City)
	assert.Equal(t, 7, out.LastModifiedBy)
	assert.Equal(t, fixedNow, out.CreatedDate)
	addr := f.store.addresses[*created.PatientAddressID]
	assert.Equal(t, "Capital City", addr.City)
	assert.Equal(t, 7, addr.LastModifiedBy)
}

func TestUpdateValidationAndMissingPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdatePatient(context.Background(), 1, nil)
	assertCode(t, err, apperrors.ErrValidation)

	dto := validDTO()
	addressID := int64(1)
	dto.PatientAddressID = &addressID
	_, err = f.svc.UpdatePatient(context.Background(), 404, dto)
	assertCode(t, err, apperrors.ErrNotFound)
}

func TestUpdateRejectsAgeOutOfRange(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, validDTO())

	for _, dob := range []time.Time{
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		dto := validDTO()
		dto.Dob = dob
		dto.PatientAddressID = created.PatientAddressID
		dto.City = "Capital City"

		_, err := f.svc.UpdatePatient(context.Background(), *created.PatientID, dto)
		assertCode(t, err, apperrors.ErrValidation)
	}

	assert.Empty(t, f.store.guardians)
	assert.Equal(t, "Shelbyville", f.store.addresses[*created.PatientAddressID].City)
	assert.Equal(t, 33, f.store.patients[*created.PatientID].Age)
}

func TestReadsDeriveAgeFromDob(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, validDTO())

	stale := f.store.patients[*created.PatientID]
	stale.Age = 30
	f.store.patients[*created.PatientID] = stale

	got, err := f.svc.GetPatient(context.Background(), *created.PatientID)
	require.NoError(t, err)
	assert.Equal(t, 33, *got.Age)

	page, err := f.svc.ListPatients(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 33, *page.Items[0].Age)
}

func TestListPatients(t *testing.T) {
	f := newFixture(t)

	empty, err := f.svc.ListPatients(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 0, empty.TotalCount)

	for i := 0; i < 25; i++ {
		f.create(t, validDTO())
	}

	page, err := f.svc.ListPatients(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 2, page.PageNumber)
	assert.Equal(t, 10, page.PageSize)
	require.Len(t, page.Items, 10)
	assert.Less(t, *page.Items[0].PatientID, *page.Items[9].PatientID)

	last, err := f.svc.ListPatients(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	capped, err := f.svc.ListPatients(context.Background(), 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, capped.PageSize)
	assert.Len(t, capped.Items, 25)
}

func TestListPatientsRejectsBadPaging(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListPatients(context.Background(), 0, 10)
	assertCode(t, err, apperrors.ErrValidation)

	_, err = f.svc.ListPatients(context.Background(), 1, 0)
	assertCode(t, err, apperrors.ErrValidation)

	_, err = f.svc.ListPatients(context.Background(), math.MaxInt/50, 100)
	assertCode(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "pageNumber is too large")
}

func TestDeletePatient(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, minorDTO())

	deleted, err := f.svc.DeletePatient(context.Background(), *created.PatientID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, f.store.patients)
	assert.Empty(t, f.store.guardians)
	assert.Len(t, f.store.addresses, 1)
	assert.Equal(t, []string{EventPatientCreated, EventPatientDeleted}, f.events.events)

	deleted, err = f.svc.DeletePatient(context.Background(), *created.PatientID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
