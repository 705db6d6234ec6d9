package types

import "fmt"

// ErrorKind classifies a validation finding.
type ErrorKind string

const (
	SchemaError             ErrorKind = "SchemaError"             // missing or invalid required field
	RangeError              ErrorKind = "RangeError"              // length or token bound violated
	FormatError             ErrorKind = "FormatError"             // date or location pattern violated
	DuplicateError          ErrorKind = "DuplicateError"          // hash, id or similarity collision
	CollaboratorUnavailable ErrorKind = "CollaboratorUnavailable" // lookup could not be performed
	Advisory                ErrorKind = "Advisory"                // quality note, never blocking
)

// Finding is a single validation result. It implements error so shard
// construction can return one directly.
type Finding struct {
	Kind    ErrorKind `json:"kind"`
	Check   string    `json:"check"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (f *Finding) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("%s [%s]: %s", f.Kind, f.Field, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// String renders the finding for human-readable summaries.
func (f Finding) String() string {
	return f.Error()
}

// NewFinding builds a finding with a formatted message.
func NewFinding(kind ErrorKind, check, field, format string, args ...interface{}) Finding {
	return Finding{
		Kind:    kind,
		Check:   check,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
