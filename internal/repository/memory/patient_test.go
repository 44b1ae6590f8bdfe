package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

func seedPatients(t *testing.T, repo *PatientRepository, clk *clock.Manual, ops ...string) []*model.Patient {
	t.Helper()
	out := make([]*model.Patient, 0, len(ops))
	for _, op := range ops {
		p := &model.Patient{PatientFields: model.PatientFields{OPNo: op, RegNo: op, Name: "P" + op}}
		require.NoError(t, repo.Create(context.Background(), p))
		out = append(out, p)
		clk.Advance(time.Second)
	}
	return out
}

func TestPatientRepositoryFind(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	repo := NewPatientRepository(clk)
	seeded := seedPatients(t, repo, clk, "3", "1", "2")

	for _, p := range seeded {
		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.False(t, p.CreatedAt.IsZero())
	}

	t.Run("ascending by timestamp", func(t *testing.T) {
		got, err := repo.Find(context.Background(), model.Query{}.Order(model.FieldTimestamp, model.Ascending))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"3", "1", "2"}, []string{got[0].OPNo, got[1].OPNo, got[2].OPNo})
	})

	t.Run("descending with limit", func(t *testing.T) {
		got, err := repo.Find(context.Background(), model.Query{}.Order(model.FieldTimestamp, model.Descending).Take(2))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "2", got[0].OPNo)
		assert.Equal(t, "1", got[1].OPNo)
	})

	t.Run("equality filter", func(t *testing.T) {
		got, err := repo.Find(context.Background(), model.Where(model.FieldOPNo, "1").Take(1))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "P1", got[0].Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := repo.Find(context.Background(), model.Where("spouseName", "x"))
		assert.ErrorIs(t, err, repository.ErrUnknownField)
	})
}

func TestPatientRepositoryReturnsCopies(t *testing.T) {
	clk := clock.NewManual(time.Now())
	repo := NewPatientRepository(clk)

	p := &model.Patient{PatientFields: model.PatientFields{OPNo: "1", RegNo: "1", Name: "A"}, Files: []string{"u1"}}
	require.NoError(t, repo.Create(context.Background(), p))
	p.Files[0] = "mutated"

	got, err := repo.Find(context.Background(), model.Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"u1"}, got[0].Files)
}

func TestPatientRepositoryUpdateAndDelete(t *testing.T) {
	clk := clock.NewManual(time.Now())
	repo := NewPatientRepository(clk)
	p := seedPatients(t, repo, clk, "1")[0]
	created := p.CreatedAt

	p.Name = "Renamed"
	p.Files = []string{"a", "b"}
	require.NoError(t, repo.Update(context.Background(), p))

	got, err := repo.Find(context.Background(), model.Where(model.FieldOPNo, "1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Renamed", got[0].Name)
	assert.Equal(t, []string{"a", "b"}, got[0].Files)
	assert.True(t, got[0].CreatedAt.Equal(created))
	assert.True(t, got[0].UpdatedAt.After(created))

	require.NoError(t, repo.Delete(context.Background(), p.ID))
	assert.ErrorIs(t, repo.Delete(context.Background(), p.ID), repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(context.Background(), p), repository.ErrNotFound)
}

func TestVisitRepositoryKeepsPatientCopiesOnUpdate(t *testing.T) {
	clk := clock.NewManual(time.Now())
	repo := NewVisitRepository(clk)

	v := &model.Visit{VisitFields: model.VisitFields{OPNo: "9", PatientName: "A", Diagnosis: "flu"}}
	require.NoError(t, repo.Create(context.Background(), v))

	v.PatientName = "changed"
	v.Diagnosis = "cold"
	require.NoError(t, repo.Update(context.Background(), v))

	got, err := repo.Find(context.Background(), model.Where(model.FieldOPNo, "9"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].PatientName)
	assert.Equal(t, "cold", got[0].Diagnosis)
}
