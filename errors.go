package agenty

import (
	"errors"
	"fmt"
)

// Sentinel errors for agenty. Use errors.Is to check.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrDuplicateTool = errors.New("tool already registered")
	ErrTimeout       = errors.New("tool execution timeout")
	ErrValidation    = errors.New("validation failed")
	ErrEmptyHistory  = errors.New("chat history is empty")
)

// ClientError is an error that should be sent back to the LLM for self-correction
// (e.g. invalid JSON, schema validation failure, bad enum value).
// Do not expose stack traces or internal details to the LLM.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	// Retryable is set by the application (not by agenty). When true, the orchestrator
	// may retry the same call without changing arguments (e.g. transient rate limit).
	Retryable bool
	Err       error // wrapped sentinel for errors.Is/errors.As
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (DB down, panic, etc.).
// The LLM should not see the underlying error message or stack.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// TransportError is a remote generation failure: request transport, non-2xx
// status, reply decoding, or a reply-level error field. It is the only error
// class Chat.Generate retries; local request-construction defects are not.
type TransportError struct {
	StatusCode int    // 0 when the request never produced a status
	Body       string // response body for non-2xx replies, if any
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation request failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("generation request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Extraction stages reported by ExtractionError.
const (
	ExtractStageLocate   = "locate"
	ExtractStageParse    = "parse"
	ExtractStageValidate = "validate"
)

// ExtractionError is a structured-output failure: no candidate span found,
// the span is not valid JSON, or the parsed value does not satisfy the
// declared OutputSchema. Invoke retries it through the corrective-feedback
// loop and finally degrades to raw text instead of raising.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "output extraction failed at stage " + e.Stage
	}
	return fmt.Sprintf("output extraction failed at stage %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// IsTransportError returns true if err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures.
// Used by Extractor.ParseAndValidate and the NewRawTool execute path so parse errors are consistent.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error()}
}
