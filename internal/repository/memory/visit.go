package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

type VisitRepository struct {
	c *collection[model.Visit]
}

var _ repository.VisitRepository = (*VisitRepository)(nil)

func NewVisitRepository(clk clock.Clock) *VisitRepository {
	return &VisitRepository{c: &collection[model.Visit]{
		clock: clk,
		items: make(map[uuid.UUID]*entry[model.Visit]),
		base:  func(v *model.Visit) *model.Base { return &v.Base },
		field: visitField,
		clone: func(v *model.Visit) *model.Visit { cp := *v; return &cp },
	}}
}

func visitField(v *model.Visit, name string) (string, bool) {
	switch name {
	case model.FieldOPNo:
		return v.OPNo, true
	case model.FieldDate:
		return v.Date, true
	case model.FieldTimestamp:
		return v.CreatedAt.Format(time.RFC3339Nano), true
	}
	return "", false
}

func (r *VisitRepository) Create(_ context.Context, visit *model.Visit) error {
	r.c.create(visit)
	return nil
}

// Update keeps the denormalized patient copies from the stored visit.
func (r *VisitRepository) Update(_ context.Context, visit *model.Visit) error {
	return r.c.update(visit, func(stored, in *model.Visit) {
		keep := stored.VisitFields
		stored.VisitFields = in.VisitFields
		stored.OPNo = keep.OPNo
		stored.PatientName = keep.PatientName
		stored.Sex = keep.Sex
		stored.Age = keep.Age
		stored.RefDoctor = keep.RefDoctor
	})
}

func (r *VisitRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.c.delete(id)
}

func (r *VisitRepository) Find(_ context.Context, q model.Query) ([]*model.Visit, error) {
	return r.c.find(q)
}
