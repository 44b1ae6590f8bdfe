package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
)

const patientColumns = `id, op_no, reg_no, name, sex, marital_status, spouse_name, dob, address,
	temperature, pulse, bp, spo2, consultant, allergy, email, operator_name, ref_doctor,
	blood_group, files, entry_date, entry_time, created_at, updated_at`

// patientRow carries the file URLs as a postgres text array.
type patientRow struct {
	model.Patient
	FileURLs pq.StringArray `db:"files"`
}

func toPatientRow(p *model.Patient) patientRow {
	urls := p.Files
	if urls == nil {
		urls = []string{}
	}
	return patientRow{Patient: *p, FileURLs: urls}
}

type patientRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewPatientRepository(db *sqlx.DB, m *metrics.Metrics) repository.PatientRepository {
	return &patientRepository{db: db, metrics: m}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) (err error) {
	defer observe(r.metrics, "patients", "insert", time.Now(), &err)

	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES (:id, :op_no, :reg_no, :name, :sex, :marital_status, :spouse_name, :dob, :address,
			:temperature, :pulse, :bp, :spo2, :consultant, :allergy, :email, :operator_name, :ref_doctor,
			:blood_group, :files, :entry_date, :entry_time, :created_at, :updated_at)
	`
	if _, err = r.db.NamedExecContext(ctx, query, toPatientRow(patient)); err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) (err error) {
	defer observe(r.metrics, "patients", "update", time.Now(), &err)

	patient.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE patients SET
			op_no = :op_no, reg_no = :reg_no, name = :name, sex = :sex,
			marital_status = :marital_status, spouse_name = :spouse_name, dob = :dob,
			address = :address, temperature = :temperature, pulse = :pulse, bp = :bp,
			spo2 = :spo2, consultant = :consultant, allergy = :allergy, email = :email,
			operator_name = :operator_name, ref_doctor = :ref_doctor,
			blood_group = :blood_group, files = :files, entry_date = :entry_date,
			entry_time = :entry_time, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, toPatientRow(patient))
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return expectOneRow(res, "patient")
}

func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer observe(r.metrics, "patients", "delete", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return expectOneRow(res, "patient")
}

func (r *patientRepository) Find(ctx context.Context, q model.Query) (_ []*model.Patient, err error) {
	defer observe(r.metrics, "patients", "find", time.Now(), &err)

	query, args, err := buildSelect(`SELECT `+patientColumns+` FROM patients`, patientFields, q)
	if err != nil {
		return nil, err
	}

	var rows []patientRow
	if err = r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	patients := make([]*model.Patient, 0, len(rows))
	for i := range rows {
		p := rows[i].Patient
		p.Files = []string(rows[i].FileURLs)
		patients = append(patients, &p)
	}
	return patients, nil
}
