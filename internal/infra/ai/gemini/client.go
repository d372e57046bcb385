package gemini

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
)

const defaultModel = "gemini-2.5-pro"

// Client implements ai.Client on the Gemini API.
type Client struct {
	models *genai.Models
	model  string
	log    *zap.Logger
}

// NewClient creates a Gemini client. The underlying genai client is created
// once and reused for every call.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &Client{models: cli.Models, model: model, log: zap.L().Named("gemini")}, nil
}

func (c *Client) Provider() string { return "gemini" }
func (c *Client) Model() string    { return c.model }

// GenerateText runs a reasoning call with dynamic thinking, optional search
// grounding and inline document parts.
func (c *Client) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](-1),
		},
		ResponseMIMEType: "text/plain",
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	parts := make([]*genai.Part, 0, len(req.Attachments)+1)
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	return c.generate(ctx, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
}

// GenerateStructured constrains the response with ResponseSchema and decodes
// it against the request schema.
func (c *Client) GenerateStructured(ctx context.Context, req ai.StructuredRequest) (map[string]string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toSchema(req.Schema),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	text, err := c.generate(ctx, []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}, config)
	if err != nil {
		return nil, err
	}
	out, err := req.Schema.Decode(text)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: decode structured response")
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return "", eris.Wrapf(ai.ErrQuotaExceeded, "gemini: %s", apiErr.Message)
		}
		return "", eris.Wrap(err, "gemini: generate content")
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", eris.Wrap(ai.ErrEmptyResponse, "gemini: no candidates")
	}

	text := resp.Text()
	if text == "" {
		return "", eris.Wrap(ai.ErrEmptyResponse, "gemini: empty text")
	}
	if resp.UsageMetadata != nil {
		c.log.Debug("generation usage",
			zap.String("model", c.model),
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount),
			zap.Int32("thinking_tokens", resp.UsageMetadata.ThoughtsTokenCount),
		)
	}
	return text, nil
}

// toSchema turns a flat enum-object schema into a genai schema, keeping the
// declared property order.
func toSchema(s ai.Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for _, p := range s.Properties {
		props[p] = &genai.Schema{Type: genai.TypeString, Enum: s.Enum}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Description:      s.Description,
		Properties:       props,
		PropertyOrdering: s.Properties,
		Required:         s.Properties,
	}
}
