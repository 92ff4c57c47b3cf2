package tool

import (
	"errors"
	"fmt"
)

// Error codes carried by ToolError.
const (
	CodeUnknownTool  = "UNKNOWN_TOOL"
	CodeExecution    = "EXECUTION_ERROR"
	CodeValidation   = "VALIDATION_ERROR"
	CodeSchema       = "SCHEMA_ERROR"
	CodeFileNotFound = "FILE_NOT_FOUND"
	CodeUnavailable  = "UNAVAILABLE"
)

// Sentinels matched by errors.Is against a ToolError of the corresponding code.
var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrToolExecution = errors.New("tool execution failed")
	ErrSchema        = errors.New("tool schema error")
	ErrFileNotFound  = errors.New("tool file not found")
	ErrUnavailable   = errors.New("tool unavailable")
)

// ToolError represents errors that occur during tool registration or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool (or file) that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`                 // Underlying cause
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error { return e.Err }

// Is maps error codes onto the package sentinels.
func (e *ToolError) Is(target error) bool {
	switch e.Code {
	case CodeUnknownTool:
		return target == ErrUnknownTool
	case CodeExecution, CodeValidation:
		return target == ErrToolExecution
	case CodeSchema:
		return target == ErrSchema
	case CodeFileNotFound:
		return target == ErrFileNotFound
	case CodeUnavailable:
		return target == ErrUnavailable
	}
	return false
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func wrapToolError(tool, code string, err error) *ToolError {
	return &ToolError{Tool: tool, Message: err.Error(), Code: code, Err: err}
}
