// Package db holds what the SQL repositories share: the index row a
// document is stored as and the scanning of stored bodies back into
// documents.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
)

// Table is the document index table every SQL repository writes.
const Table = "nelda_analyses"

// Row is the indexed projection of a document plus its JSON body.
type Row struct {
	ID                     string
	ElectionID             string
	Side                   string
	CountryName            string
	CompletedAt            time.Time
	TotalFieldsCoded       int
	MissingFieldsRecovered int
	Body                   []byte
}

// RowFrom projects d. A zero completion time is replaced with now.
func RowFrom(d *domain.Document) (Row, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return Row{}, eris.Wrap(err, "db: encode document")
	}
	completed := d.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	return Row{
		ID:                     string(d.ID),
		ElectionID:             d.Parameters.ElectionID,
		Side:                   d.Parameters.Side(),
		CountryName:            d.Parameters.CountryName,
		CompletedAt:            completed,
		TotalFieldsCoded:       d.TotalFieldsCoded,
		MissingFieldsRecovered: d.MissingFieldsRecovered,
		Body:                   body,
	}, nil
}

// ScanDocuments decodes rows whose only column is a document body. It
// closes rows.
func ScanDocuments(rows *sql.Rows) ([]*domain.Document, error) {
	defer rows.Close()

	out := make([]*domain.Document, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "db: scan document")
		}
		var d domain.Document
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, eris.Wrap(err, "db: decode document")
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "db: iterate documents")
	}
	return out, nil
}
