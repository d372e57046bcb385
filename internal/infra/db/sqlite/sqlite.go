// Package sqlite stores provenance documents in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	"github.com/samtaplin/llmneldacoding/internal/infra/db"
)

//go:embed schema.sql
var schemaSQL string

// Open opens path (":memory:" works) with a single connection, since
// SQLite serializes writers anyway.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return conn, nil
}

type AnalysisRepository struct {
	conn *sql.DB
}

func NewAnalysisRepository(conn *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{conn: conn}
}

// Migrate applies the embedded schema.
func (r *AnalysisRepository) Migrate(ctx context.Context) error {
	_, err := r.conn.ExecContext(ctx, schemaSQL)
	return eris.Wrap(err, "sqlite: migrate")
}

func (r *AnalysisRepository) Save(ctx context.Context, d *domain.Document) (string, error) {
	const q = `
INSERT INTO ` + db.Table + `
  (id, election_id, side, country_name, completed_at, total_fields_coded, missing_fields_recovered, document)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
  completed_at=excluded.completed_at,
  total_fields_coded=excluded.total_fields_coded,
  missing_fields_recovered=excluded.missing_fields_recovered,
  document=excluded.document;`

	row, err := db.RowFrom(d)
	if err != nil {
		return "", err
	}
	if _, err := r.conn.ExecContext(ctx, q,
		row.ID, row.ElectionID, row.Side, row.CountryName, row.CompletedAt.UnixNano(),
		row.TotalFieldsCoded, row.MissingFieldsRecovered, string(row.Body),
	); err != nil {
		return "", eris.Wrap(err, "sqlite: save document")
	}
	return row.ID, nil
}

func (r *AnalysisRepository) ListByElection(ctx context.Context, electionID string, limit int) ([]*domain.Document, error) {
	const q = `
SELECT document
FROM ` + db.Table + `
WHERE election_id=?
ORDER BY completed_at DESC, id DESC
LIMIT ?;`
	rows, err := r.conn.QueryContext(ctx, q, electionID, domain.ClampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	return db.ScanDocuments(rows)
}

func (r *AnalysisRepository) Check(ctx context.Context) error { return r.conn.PingContext(ctx) }
