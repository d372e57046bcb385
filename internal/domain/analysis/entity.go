package analysis

import (
	"time"

	"github.com/samtaplin/llmneldacoding/internal/domain/nelda"
	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
)

// DocumentID identifier type
type DocumentID string

// Document is the provenance record persisted once per completed run.
type Document struct {
	ID                     DocumentID      `json:"id"`
	Parameters             trigger.Request `json:"parameters"`
	CompletedAt            time.Time       `json:"timestamp"`
	AnalysisText           string          `json:"analysis_text"`
	Coding                 nelda.Record    `json:"nelda_coding"`
	FollowUpAttempted      bool            `json:"follow_up_attempted"`
	MissingFieldsRecovered int             `json:"missing_fields_recovered"`
	TotalFieldsCoded       int             `json:"total_fields_coded"`
	MissingFields          []string        `json:"missing_fields"`
	AnalysisModel          string          `json:"analysis_model,omitempty"`
	ExtractionModel        string          `json:"extraction_model,omitempty"`
}
