package analysis

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
	"github.com/samtaplin/llmneldacoding/internal/domain/nelda"
	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
)

// CodingSchema is the structured-output schema for the given NELDA fields.
func CodingSchema(fields []string) ai.Schema {
	return ai.Schema{
		Name:        "nelda_coding",
		Description: "NELDA variable codings for one election.",
		Properties:  fields,
		Enum:        nelda.ValueStrings(),
	}
}

// FollowUp asks the extractor again for fields the first structured pass
// did not return.
type FollowUp struct {
	Client  ai.Client
	Prompts Prompter
}

// Request issues one structured call whose schema holds only missing. The
// returned record never contains a field outside missing.
func (f *FollowUp) Request(ctx context.Context, req trigger.Request, analysisText string, missing []string) (nelda.Record, error) {
	if len(missing) == 0 {
		return nelda.Record{}, nil
	}

	p, err := f.Prompts.FollowUpPrompt(req, analysisText, missing)
	if err != nil {
		return nil, eris.Wrap(err, "followup: build prompt")
	}

	fields := make([]string, len(missing))
	copy(fields, missing)
	out, err := f.Client.GenerateStructured(ctx, ai.StructuredRequest{
		Prompt: p,
		Schema: CodingSchema(fields),
	})
	if err != nil {
		return nil, eris.Wrap(err, "followup: generate")
	}

	want := make(map[string]struct{}, len(missing))
	for _, m := range missing {
		want[m] = struct{}{}
	}
	rec := nelda.RecordFrom(out)
	for k := range rec {
		if _, ok := want[k]; !ok {
			delete(rec, k)
		}
	}
	return rec, nil
}
