package mysql

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	"github.com/samtaplin/llmneldacoding/internal/infra/db"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Migrate creates the document index table when it does not exist.
func (r *AnalysisRepository) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS ` + db.Table + ` (
  id                       VARCHAR(64)  NOT NULL PRIMARY KEY,
  election_id              VARCHAR(64)  NOT NULL,
  side                     VARCHAR(8)   NOT NULL,
  country_name             VARCHAR(255) NOT NULL,
  completed_at             DATETIME(6)  NOT NULL,
  total_fields_coded       INT          NOT NULL,
  missing_fields_recovered INT          NOT NULL,
  document                 JSON         NOT NULL,
  KEY idx_nelda_analyses_election (election_id, completed_at)
);`
	_, err := r.db.ExecContext(ctx, q)
	return eris.Wrap(err, "mysql: migrate")
}

// Save inserts the document; a repeated id replaces the stored body.
func (r *AnalysisRepository) Save(ctx context.Context, d *domain.Document) (string, error) {
	const q = `
INSERT INTO ` + db.Table + `
  (id, election_id, side, country_name, completed_at, total_fields_coded, missing_fields_recovered, document)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  completed_at=VALUES(completed_at), total_fields_coded=VALUES(total_fields_coded),
  missing_fields_recovered=VALUES(missing_fields_recovered), document=VALUES(document);
`
	row, err := db.RowFrom(d)
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx, q,
		row.ID, row.ElectionID, row.Side, stringOrDash(row.CountryName), row.CompletedAt,
		row.TotalFieldsCoded, row.MissingFieldsRecovered, row.Body,
	)
	if err != nil {
		return "", eris.Wrap(err, "mysql: save document")
	}
	return row.ID, nil
}

// ListByElection returns the newest documents for an election.
func (r *AnalysisRepository) ListByElection(ctx context.Context, electionID string, limit int) ([]*domain.Document, error) {
	const q = `
SELECT document
FROM ` + db.Table + `
WHERE election_id=?
ORDER BY completed_at DESC, id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, electionID, domain.ClampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "mysql: list documents")
	}
	return db.ScanDocuments(rows)
}

// Check pings the database for the health endpoint.
func (r *AnalysisRepository) Check(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
