package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/model"
)

var (
	// ErrNotFound is returned by Update and Delete when no record has the id.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownField is returned for a query on a field the store does not index.
	ErrUnknownField = errors.New("unknown query field")
)

// All repository interfaces in one file
type (
	// PatientRepository is the `patients` collection. Create assigns the
	// identifier and the creation timestamp.
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, id uuid.UUID) error
		Find(ctx context.Context, q model.Query) ([]*model.Patient, error)
	}

	// VisitRepository is the `opHistory` collection.
	VisitRepository interface {
		Create(ctx context.Context, visit *model.Visit) error
		Update(ctx context.Context, visit *model.Visit) error
		Delete(ctx context.Context, id uuid.UUID) error
		Find(ctx context.Context, q model.Query) ([]*model.Visit, error)
	}

	// SessionRepository persists the authenticated flag per session.
	SessionRepository interface {
		SetAuthenticated(ctx context.Context, sessionID string, ttl time.Duration) error
		IsAuthenticated(ctx context.Context, sessionID string) (bool, error)
		Clear(ctx context.Context, sessionID string) error
		Ping(ctx context.Context) error
	}
)
