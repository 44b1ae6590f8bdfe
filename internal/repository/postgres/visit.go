package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
)

const visitColumns = `id, op_no, visit_date, visit_time, patient_name, sex, age, ref_doctor,
	history_examination, investigation, temperature, pulse, bp, spo2, diagnosis, review_date,
	created_at, updated_at`

type visitRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func NewVisitRepository(db *sqlx.DB, m *metrics.Metrics) repository.VisitRepository {
	return &visitRepository{db: db, metrics: m}
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) (err error) {
	defer observe(r.metrics, "op_history", "insert", time.Now(), &err)

	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	now := time.Now().UTC()
	visit.CreatedAt = now
	visit.UpdatedAt = now

	query := `
		INSERT INTO op_history (` + visitColumns + `)
		VALUES (:id, :op_no, :visit_date, :visit_time, :patient_name, :sex, :age, :ref_doctor,
			:history_examination, :investigation, :temperature, :pulse, :bp, :spo2, :diagnosis,
			:review_date, :created_at, :updated_at)
	`
	if _, err = r.db.NamedExecContext(ctx, query, visit); err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

// Update rewrites the clinical fields of a visit. The denormalized patient
// copies stay as they were at visit time.
func (r *visitRepository) Update(ctx context.Context, visit *model.Visit) (err error) {
	defer observe(r.metrics, "op_history", "update", time.Now(), &err)

	visit.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE op_history SET
			visit_date = :visit_date, visit_time = :visit_time,
			history_examination = :history_examination, investigation = :investigation,
			temperature = :temperature, pulse = :pulse, bp = :bp, spo2 = :spo2,
			diagnosis = :diagnosis, review_date = :review_date, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, visit)
	if err != nil {
		return fmt.Errorf("failed to update visit: %w", err)
	}
	return expectOneRow(res, "visit")
}

func (r *visitRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer observe(r.metrics, "op_history", "delete", time.Now(), &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM op_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete visit: %w", err)
	}
	return expectOneRow(res, "visit")
}

func (r *visitRepository) Find(ctx context.Context, q model.Query) (_ []*model.Visit, err error) {
	defer observe(r.metrics, "op_history", "find", time.Now(), &err)

	query, args, err := buildSelect(`SELECT `+visitColumns+` FROM op_history`, visitFields, q)
	if err != nil {
		return nil, err
	}

	var visits []*model.Visit
	if err = r.db.SelectContext(ctx, &visits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}
