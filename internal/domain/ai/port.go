package ai

import "context"

// Attachment is a document sent alongside a prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// TextRequest asks for free-form reasoning.
type TextRequest struct {
	System      string
	Prompt      string
	Attachments []Attachment
	// WebSearch enables search grounding where the provider supports it.
	WebSearch bool
}

// StructuredRequest asks for a JSON object constrained by Schema.
type StructuredRequest struct {
	System string
	Prompt string
	Schema Schema
}

// Client is the generation service port. GenerateStructured returns only
// properties that conform to the request schema.
type Client interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	GenerateStructured(ctx context.Context, req StructuredRequest) (map[string]string, error)
}

// Describer is implemented by clients that can name their provider and model
// for provenance.
type Describer interface {
	Provider() string
	Model() string
}
