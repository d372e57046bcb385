package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
)

const (
	defaultModel = "claude-sonnet-4-5-20250929"
	maxTokens    = 16000
	toolName     = "record_coding"
)

// Client implements ai.Client on the Anthropic Messages API. Structured
// output is obtained by forcing a single tool call whose input schema is the
// request schema.
type Client struct {
	client sdk.Client
	model  string
}

func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	if model == "" {
		model = defaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{client: sdk.NewClient(opts...), model: model}
}

func (c *Client) Provider() string { return "anthropic" }
func (c *Client) Model() string    { return c.model }

// GenerateText sends PDF attachments as base64 document blocks ahead of the
// prompt. Web search grounding is not requested from this provider.
func (c *Client) GenerateText(ctx context.Context, req ai.TextRequest) (string, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(req.Attachments)+1)
	for _, a := range req.Attachments {
		if a.MIMEType != "application/pdf" {
			return "", eris.Wrapf(ai.ErrUnsupported, "anthropic: attachment type %s", a.MIMEType)
		}
		blocks = append(blocks, sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(a.Data),
		}))
	}
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))

	msg, err := c.client.Messages.New(ctx, c.params(req.System, blocks))
	if err != nil {
		return "", wrapErr(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", eris.Wrap(ai.ErrEmptyResponse, "anthropic: no text blocks")
	}
	return text.String(), nil
}

// GenerateStructured forces a tool call and decodes its input.
func (c *Client) GenerateStructured(ctx context.Context, req ai.StructuredRequest) (map[string]string, error) {
	params := c.params(req.System, []sdk.ContentBlockParamUnion{sdk.NewTextBlock(req.Prompt)})
	params.Tools = []sdk.ToolUnionParam{{OfTool: &sdk.ToolParam{
		Name:        toolName,
		Description: sdk.String(describe(req.Schema)),
		InputSchema: toInputSchema(req.Schema),
	}}}
	params.ToolChoice = sdk.ToolChoiceUnionParam{OfTool: &sdk.ToolChoiceToolParam{Name: toolName}}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapErr(err)
	}
	for _, block := range msg.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			out, err := req.Schema.Decode(string(block.Input))
			if err != nil {
				return nil, eris.Wrap(err, "anthropic: decode tool input")
			}
			return out, nil
		}
	}
	return nil, eris.Wrap(ai.ErrMalformedResponse, "anthropic: no tool_use block")
}

func (c *Client) params(system string, blocks []sdk.ContentBlockParamUnion) sdk.MessageNewParams {
	p := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if system != "" {
		p.System = []sdk.TextBlockParam{{Text: system}}
	}
	return p
}

func wrapErr(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return eris.Wrapf(ai.ErrQuotaExceeded, "anthropic: %v", err)
	}
	return eris.Wrap(err, "anthropic: create message")
}

func describe(s ai.Schema) string {
	if s.Description != "" {
		return s.Description
	}
	return "Record the coding for each listed variable."
}

func toInputSchema(s ai.Schema) sdk.ToolInputSchemaParam {
	props := make(map[string]any, len(s.Properties))
	for _, p := range s.Properties {
		props[p] = map[string]any{"type": "string", "enum": s.Enum}
	}
	return sdk.ToolInputSchemaParam{
		Properties: props,
		Required:   s.Properties,
	}
}
