package anthropic

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samtaplin/llmneldacoding/internal/domain/ai"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
}

func writeMessage(w http.ResponseWriter, content []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-test",
		"content":     content,
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
}

func TestGenerateTextSendsDocument(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeMessage(w, []map[string]any{{"type": "text", "text": "NELDA1 is Yes"}})
	})

	out, err := c.GenerateText(t.Context(), ai.TextRequest{
		System:      "expert",
		Prompt:      "code it",
		Attachments: []ai.Attachment{{MIMEType: "application/pdf", Data: []byte("%PDF-1.4")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "NELDA1 is Yes", out)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	blocks := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "document", blocks[0].(map[string]any)["type"])
	assert.Equal(t, "text", blocks[1].(map[string]any)["type"])
}

func TestGenerateTextRejectsNonPDF(t *testing.T) {
	c := NewClient("k", "")
	_, err := c.GenerateText(t.Context(), ai.TextRequest{
		Prompt:      "x",
		Attachments: []ai.Attachment{{MIMEType: "image/png", Data: []byte{1}}},
	})
	assert.ErrorIs(t, err, ai.ErrUnsupported)
}

func TestGenerateStructuredForcesTool(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeMessage(w, []map[string]any{{
			"type":  "tool_use",
			"id":    "toolu_1",
			"name":  toolName,
			"input": map[string]any{"NELDA1": "No", "NELDA9": "Yes"},
		}})
	})

	out, err := c.GenerateStructured(t.Context(), ai.StructuredRequest{
		Prompt: "extract",
		Schema: ai.Schema{Properties: []string{"NELDA1"}, Enum: []string{"Yes", "No"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"NELDA1": "No"}, out)

	choice := body["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, toolName, choice["name"])
}

func TestGenerateStructuredWithoutToolUse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, []map[string]any{{"type": "text", "text": "sorry"}})
	})

	_, err := c.GenerateStructured(t.Context(), ai.StructuredRequest{Prompt: "x", Schema: ai.Schema{Properties: []string{"NELDA1"}}})
	assert.ErrorIs(t, err, ai.ErrMalformedResponse)
}

func TestQuotaExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := c.GenerateText(t.Context(), ai.TextRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
}
