package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
)

// observe is deferred with a pointer so it sees the final error.
func observe(m *metrics.Metrics, collection, operation string, start time.Time, err *error) {
	m.ObserveStore(collection, operation, start, *err)
}

func expectOneRow(res sql.Result, kind string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", kind, repository.ErrNotFound)
	}
	return nil
}
