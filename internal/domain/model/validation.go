package model

import "fmt"

// ValidationKind is the outcome class of a FormValidation.
type ValidationKind string

const (
	ValidationKindOK    ValidationKind = "ok"
	ValidationKindError ValidationKind = "error"
)

// FormValidation is the user-facing result of an administrative operation.
type FormValidation struct {
	Kind    ValidationKind
	Message string
}

// ValidationOK builds a successful result.
func ValidationOK(format string, args ...any) FormValidation {
	return FormValidation{Kind: ValidationKindOK, Message: fmt.Sprintf(format, args...)}
}

// ValidationError builds a failed result.
func ValidationError(format string, args ...any) FormValidation {
	return FormValidation{Kind: ValidationKindError, Message: fmt.Sprintf(format, args...)}
}

// IsOK reports whether the result is a success.
func (v FormValidation) IsOK() bool {
	return v.Kind == ValidationKindOK
}

// ListBoxOption is one entry of a selection list.
type ListBoxOption struct {
	Name  string
	Value string
}
