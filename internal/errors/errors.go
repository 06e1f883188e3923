package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies a build error for handling decisions. Input errors are
// never retryable (a structurally bad input cannot fix itself); cache errors
// degrade to "no cache" rather than failing the build.
type Category string

const (
	CategoryInput         Category = "input"
	CategoryArchive       Category = "archive"
	CategoryPolicy        Category = "policy"
	CategoryCache         Category = "cache"
	CategoryConfiguration Category = "configuration"
	CategoryFilesystem    Category = "filesystem"
)

// Well-known error codes. Callers branch on these instead of matching
// message strings.
const (
	CodeArchiveRead        = "archive_read"
	CodeMalformedClassFile = "malformed_class_file"
	CodeMissingMainClass   = "missing_main_class"
	CodeFilterOnFile       = "filter_on_file"
	CodeUnsupportedEntry   = "unsupported_entry"
	CodeDuplicatePath      = "duplicate_path"
	CodeJavaVersion        = "java_version_unsupported"
	CodeUnknownAppRoot     = "unknown_app_root"
	CodeCorruptCache       = "corrupt_cache"
)

// BuildError is the error type carried across package boundaries. It keeps
// enough structure that callers can distinguish failure classes without
// string matching.
type BuildError struct {
	Category   Category `json:"category"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message"`
	Cause      error    `json:"-"`
	Operation  string   `json:"operation,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Category, e.Operation, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying error
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the message with the remediation suggestion, if any.
func (e *BuildError) UserMessage() string {
	if e.Suggestion == "" {
		return e.Message
	}
	return e.Message + "\n\nSuggestion: " + e.Suggestion
}

// New creates a BuildError in the given category.
func New(category Category, operation, message string) *BuildError {
	return &BuildError{
		Category:  category,
		Message:   message,
		Operation: operation,
	}
}

// Newf creates a BuildError with a formatted message.
func Newf(category Category, operation, format string, args ...interface{}) *BuildError {
	return New(category, operation, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause to a BuildError.
func Wrap(category Category, operation, message string, cause error) *BuildError {
	e := New(category, operation, message)
	e.Cause = cause
	return e
}

// WithCode sets the error code and returns the error for chaining.
func (e *BuildError) WithCode(code string) *BuildError {
	e.Code = code
	return e
}

// WithSuggestion sets a remediation hint and returns the error for chaining.
func (e *BuildError) WithSuggestion(suggestion string) *BuildError {
	e.Suggestion = suggestion
	return e
}

// IsCategory reports whether err (or anything it wraps) is a BuildError of
// the given category.
func IsCategory(err error, category Category) bool {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Category == category
	}
	return false
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Code == code
	}
	return false
}
