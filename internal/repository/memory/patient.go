package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

type PatientRepository struct {
	c *collection[model.Patient]
}

var _ repository.PatientRepository = (*PatientRepository)(nil)

func NewPatientRepository(clk clock.Clock) *PatientRepository {
	return &PatientRepository{c: &collection[model.Patient]{
		clock: clk,
		items: make(map[uuid.UUID]*entry[model.Patient]),
		base:  func(p *model.Patient) *model.Base { return &p.Base },
		field: patientField,
		clone: clonePatient,
	}}
}

func patientField(p *model.Patient, name string) (string, bool) {
	switch name {
	case model.FieldOPNo:
		return p.OPNo, true
	case model.FieldRegNo:
		return p.RegNo, true
	case model.FieldDate:
		return p.Date, true
	case model.FieldTimestamp:
		return p.CreatedAt.Format(time.RFC3339Nano), true
	}
	return "", false
}

func clonePatient(p *model.Patient) *model.Patient {
	cp := *p
	cp.Files = append([]string(nil), p.Files...)
	return &cp
}

func (r *PatientRepository) Create(_ context.Context, patient *model.Patient) error {
	r.c.create(patient)
	return nil
}

func (r *PatientRepository) Update(_ context.Context, patient *model.Patient) error {
	return r.c.update(patient, func(stored, in *model.Patient) {
		stored.PatientFields = in.PatientFields
		stored.Files = append([]string(nil), in.Files...)
	})
}

func (r *PatientRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.c.delete(id)
}

func (r *PatientRepository) Find(_ context.Context, q model.Query) ([]*model.Patient, error) {
	return r.c.find(q)
}
