// Package dashboard computes the counters shown on the landing screen.
package dashboard

import (
	"context"
	"fmt"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

type Stats struct {
	TotalPatients int    `json:"totalPatients"`
	VisitsToday   int    `json:"visitsToday"`
	FilesUploaded int    `json:"filesUploaded"`
	Date          string `json:"date"`
}

type Service struct {
	patients repository.PatientRepository
	visits   repository.VisitRepository
	clock    clock.Clock
}

func NewService(patients repository.PatientRepository, visits repository.VisitRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{patients: patients, visits: visits, clock: clk}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	today, _ := model.Stamp(s.clock.Now())

	patients, err := s.patients.Find(ctx, model.Query{})
	if err != nil {
		return nil, fmt.Errorf("failed to count patients: %w", err)
	}
	visits, err := s.visits.Find(ctx, model.Where(model.FieldDate, today))
	if err != nil {
		return nil, fmt.Errorf("failed to count today's visits: %w", err)
	}

	stats := &Stats{
		TotalPatients: len(patients),
		VisitsToday:   len(visits),
		Date:          today,
	}
	for _, p := range patients {
		stats.FilesUploaded += len(p.Files)
	}
	return stats, nil
}
