package postgres

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	"github.com/samtaplin/llmneldacoding/internal/infra/db"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

// Migrate creates the document index table when it does not exist.
func (r *AnalysisRepository) Migrate(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS ` + db.Table + ` (
  id                       TEXT        PRIMARY KEY,
  election_id              TEXT        NOT NULL,
  side                     TEXT        NOT NULL,
  country_name             TEXT        NOT NULL,
  completed_at             TIMESTAMPTZ NOT NULL,
  total_fields_coded       INTEGER     NOT NULL,
  missing_fields_recovered INTEGER     NOT NULL,
  document                 JSONB       NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_nelda_analyses_election ON ` + db.Table + ` (election_id, completed_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return eris.Wrap(err, "postgres: migrate")
		}
	}
	return nil
}

// Save insert/update a document
func (r *AnalysisRepository) Save(ctx context.Context, d *domain.Document) (string, error) {
	const q = `
INSERT INTO ` + db.Table + `
  (id, election_id, side, country_name, completed_at, total_fields_coded, missing_fields_recovered, document)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  completed_at=EXCLUDED.completed_at,
  total_fields_coded=EXCLUDED.total_fields_coded,
  missing_fields_recovered=EXCLUDED.missing_fields_recovered,
  document=EXCLUDED.document;`

	row, err := db.RowFrom(d)
	if err != nil {
		return "", err
	}
	if _, err := r.db.ExecContext(ctx, q,
		row.ID, row.ElectionID, row.Side, row.CountryName, row.CompletedAt,
		row.TotalFieldsCoded, row.MissingFieldsRecovered, string(row.Body),
	); err != nil {
		return "", eris.Wrap(err, "postgres: save document")
	}
	return row.ID, nil
}

// ListByElection newest first
func (r *AnalysisRepository) ListByElection(ctx context.Context, electionID string, limit int) ([]*domain.Document, error) {
	const q = `
SELECT document
FROM ` + db.Table + `
WHERE election_id=$1
ORDER BY completed_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, electionID, domain.ClampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	return db.ScanDocuments(rows)
}

func (r *AnalysisRepository) Check(ctx context.Context) error { return r.db.PingContext(ctx) }
