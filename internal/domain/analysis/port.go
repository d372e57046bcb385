package analysis

import "context"

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Repository port for persisting and querying provenance documents.
// Save returns the store's identifier for the written document.
type Repository interface {
	Save(ctx context.Context, d *Document) (string, error)
	ListByElection(ctx context.Context, electionID string, limit int) ([]*Document, error)
}

// ClampLimit maps a requested page size into [1, MaxListLimit].
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	}
	return n
}
