package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
)

const maxTokens = 8192

type Client struct {
	*openai.Client
	model string
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "o3-2025-04-16"
	}
	return &Client{Client: openai.NewClient(apiKey), model: model}
}

// NewClientWithConfig is used to point the client at a compatible endpoint.
func NewClientWithConfig(cfg openai.ClientConfig, model string) *Client {
	c := NewClient("", model)
	c.Client = openai.NewClientWithConfig(cfg)
	return c
}

func (c *Client) Provider() string { return "openai" }
func (c *Client) Model() string    { return c.model }

// GenerateText runs a plain chat completion. Document attachments are not
// supported by this adapter.
func (c *Client) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	if len(req.Attachments) > 0 {
		return "", eris.Wrap(ai.ErrUnsupported, "openai: document attachments")
	}
	return c.complete(ctx, c.request(req.System, req.Prompt))
}

// GenerateStructured uses a strict JSON schema response format.
func (c *Client) GenerateStructured(ctx context.Context, req ai.StructuredRequest) (map[string]string, error) {
	r := c.request(req.System, req.Prompt)
	name := req.Schema.Name
	if name == "" {
		name = "structured_output"
	}
	r.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:        name,
			Description: req.Schema.Description,
			Schema:      toDefinition(req.Schema),
			Strict:      true,
		},
	}

	text, err := c.complete(ctx, r)
	if err != nil {
		return nil, err
	}
	out, err := req.Schema.Decode(text)
	if err != nil {
		return nil, eris.Wrap(err, "openai: decode structured response")
	}
	return out, nil
}

func (c *Client) request(system, user string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{Model: c.model}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}
	return req
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", eris.Wrapf(ai.ErrQuotaExceeded, "openai: %s", apiErr.Message)
		}
		return "", eris.Wrap(err, "openai: create chat completion")
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", eris.Wrap(ai.ErrEmptyResponse, "openai: no content")
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func toDefinition(s ai.Schema) *jsonschema.Definition {
	props := make(map[string]jsonschema.Definition, len(s.Properties))
	for _, p := range s.Properties {
		props[p] = jsonschema.Definition{Type: jsonschema.String, Enum: s.Enum}
	}
	return &jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           props,
		Required:             s.Properties,
		AdditionalProperties: false,
	}
}
