package postgres

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

const migrationTable = "frontdesk_migrations"

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_patients",
			Up: []string{`
				CREATE TABLE IF NOT EXISTS patients (
					id             UUID PRIMARY KEY,
					op_no          TEXT NOT NULL,
					reg_no         TEXT NOT NULL,
					name           TEXT NOT NULL,
					sex            TEXT NOT NULL DEFAULT '',
					marital_status TEXT NOT NULL DEFAULT '',
					spouse_name    TEXT NOT NULL DEFAULT '',
					dob            TEXT NOT NULL DEFAULT '',
					address        TEXT NOT NULL DEFAULT '',
					temperature    TEXT NOT NULL DEFAULT '',
					pulse          TEXT NOT NULL DEFAULT '',
					bp             TEXT NOT NULL DEFAULT '',
					spo2           TEXT NOT NULL DEFAULT '',
					consultant     TEXT NOT NULL DEFAULT '',
					allergy        TEXT NOT NULL DEFAULT '',
					email          TEXT NOT NULL DEFAULT '',
					operator_name  TEXT NOT NULL DEFAULT '',
					ref_doctor     TEXT NOT NULL DEFAULT '',
					blood_group    TEXT NOT NULL DEFAULT '',
					files          TEXT[] NOT NULL DEFAULT '{}',
					entry_date     TEXT NOT NULL DEFAULT '',
					entry_time     TEXT NOT NULL DEFAULT '',
					created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE INDEX IF NOT EXISTS idx_patients_op_no ON patients (op_no)`,
				`CREATE INDEX IF NOT EXISTS idx_patients_created_at ON patients (created_at)`,
			},
			Down: []string{`DROP TABLE IF EXISTS patients`},
		},
		{
			Id: "0002_op_history",
			Up: []string{`
				CREATE TABLE IF NOT EXISTS op_history (
					id                  UUID PRIMARY KEY,
					op_no               TEXT NOT NULL,
					visit_date          TEXT NOT NULL DEFAULT '',
					visit_time          TEXT NOT NULL DEFAULT '',
					patient_name        TEXT NOT NULL DEFAULT '',
					sex                 TEXT NOT NULL DEFAULT '',
					age                 TEXT NOT NULL DEFAULT '',
					ref_doctor          TEXT NOT NULL DEFAULT '',
					history_examination TEXT NOT NULL DEFAULT '',
					investigation       TEXT NOT NULL DEFAULT '',
					temperature         TEXT NOT NULL DEFAULT '',
					pulse               TEXT NOT NULL DEFAULT '',
					bp                  TEXT NOT NULL DEFAULT '',
					spo2                TEXT NOT NULL DEFAULT '',
					diagnosis           TEXT NOT NULL DEFAULT '',
					review_date         TEXT NOT NULL DEFAULT '',
					created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE INDEX IF NOT EXISTS idx_op_history_op_no_created ON op_history (op_no, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_op_history_visit_date ON op_history (visit_date)`,
			},
			Down: []string{`DROP TABLE IF EXISTS op_history`},
		},
	},
}

func init() {
	migrate.SetTable(migrationTable)
}

// Migrate applies every pending migration and returns how many ran.
func Migrate(db *sqlx.DB) (int, error) {
	n, err := migrate.Exec(db.DB, "postgres", migrations, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return n, nil
}

// MigrationStatus lists each known migration id with whether it is applied.
func MigrationStatus(db *sqlx.DB) ([]MigrationState, error) {
	known, err := migrations.FindMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	records, err := migrate.GetMigrationRecords(db.DB, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration records: %w", err)
	}
	applied := make(map[string]bool, len(records))
	for _, r := range records {
		applied[r.Id] = true
	}

	out := make([]MigrationState, 0, len(known))
	for _, m := range known {
		out = append(out, MigrationState{ID: m.Id, Applied: applied[m.Id]})
	}
	return out, nil
}

type MigrationState struct {
	ID      string
	Applied bool
}
