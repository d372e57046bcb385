package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("ai empty response")

// ErrMalformedResponse is returned when structured output is not a JSON object.
var ErrMalformedResponse = errors.New("ai malformed structured response")

// ErrUnsupported is returned when a provider cannot serve a request shape,
// e.g. a document attachment.
var ErrUnsupported = errors.New("ai request not supported by provider")
