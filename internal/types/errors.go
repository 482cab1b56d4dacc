package types

import "errors"

// Error taxonomy for graph session failures. Connection errors are fatal to
// the session and surface to the engine's run loop for restart decisions.
// Write errors are expected races with node removal and are never fatal.
var (
	// ErrGraphConnection indicates the PipeWire session could not be
	// established or was lost.
	ErrGraphConnection = errors.New("graph session connection failed")
	// ErrGraphWrite indicates a volume-set request failed, usually because
	// the node vanished mid-write.
	ErrGraphWrite = errors.New("graph volume write failed")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g. "ducking.attenuation_factor")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Errors: make([]FieldError, 0)}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message, Value: value})
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + v.Errors[0].Field + ": " + v.Errors[0].Message
}

// HasErrors reports whether any field errors were collected.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}
