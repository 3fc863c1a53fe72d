package models

import (
	"fmt"
)

// InvalidInputError reports degenerate input data, such as a metadata column
// holding a single value.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return e.Reason
}

// UpstreamRequestError reports a failed portal call: either the transport
// failed (Err set) or the portal answered with a non-2xx status.
type UpstreamRequestError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("request to %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamRequestError) Unwrap() error {
	return e.Err
}

// ToolChainError reports a non-zero exit from an external stage.
type ToolChainError struct {
	Stage       string
	Diagnostics string
	Err         error
}

func (e *ToolChainError) Error() string {
	if e.Diagnostics == "" && e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Diagnostics)
}

func (e *ToolChainError) Unwrap() error {
	return e.Err
}

// SubmissionError reports a failure to upload artifacts or to deliver the
// final payload.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// TranslationError reports a malformed or unreadable result table.
type TranslationError struct {
	Path string
	Line int
	Err  error
}

func (e *TranslationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("translate %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("translate %s: %v", e.Path, e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}
