package postgres

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

// columnSet maps logical query fields onto table columns.
type columnSet map[string]string

var (
	patientFields = columnSet{
		model.FieldOPNo:      "op_no",
		model.FieldRegNo:     "reg_no",
		model.FieldDate:      "entry_date",
		model.FieldTimestamp: "created_at",
	}
	visitFields = columnSet{
		model.FieldOPNo:      "op_no",
		model.FieldDate:      "visit_date",
		model.FieldTimestamp: "created_at",
	}
)

// buildSelect appends WHERE, ORDER BY and LIMIT clauses for q to base.
// Only whitelisted columns ever reach the SQL text.
func buildSelect(base string, cols columnSet, q model.Query) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(base)
	var args []interface{}

	if q.Field != "" {
		col, ok := cols[q.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", repository.ErrUnknownField, q.Field)
		}
		args = append(args, q.Value)
		fmt.Fprintf(&sb, " WHERE %s = $%d", col, len(args))
	}

	if q.OrderBy != "" {
		col, ok := cols[q.OrderBy]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", repository.ErrUnknownField, q.OrderBy)
		}
		dir := "ASC"
		if q.Direction == model.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s, id %s", col, dir, dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args, nil
}
