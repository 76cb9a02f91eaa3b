package errcode

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents the wire/CLI code for a particular error condition.
// The entire error condition should be representable as one of these
// codes, including possible substituted information like the offending
// fmri or digest, but that information should be present in the message
// rather than the code.
type ErrorCode int

// ErrorDescriptor provides relevant information about a given error code.
type ErrorDescriptor struct {
	// Code is the error code, assigned by Register.
	Code ErrorCode

	// Value provides a unique, string key, often capitalized with
	// underscores and namespaced, that identifies the error condition.
	// pkg6repo's own descriptors use the stable
	// "namespace::category_error[::specific]" form.
	Value string

	// Message is the short, human readable decription of the error
	// condition. Messages may contain "%s" placeholders filled in via
	// WithArgs.
	Message string

	// Description provides a complete account of the errors purpose,
	// suitable for use in documentation.
	Description string

	// ExitCode is the process exit code this error maps to on the CLI.
	ExitCode int
}

// String returns the descriptor's Value.
func (ed ErrorDescriptor) String() string {
	return ed.Value
}

// Descriptor returns the descriptor for the error code.
func (ec ErrorCode) Descriptor() ErrorDescriptor {
	return errorCodeToDescriptors[ec]
}

// String returns the canonical "namespace::category_error[::specific]"
// stable code for this error, suitable for display and comparison across
// versions.
func (ec ErrorCode) String() string {
	return ec.Descriptor().Value
}

// Message returned the human-readable error message for this code.
func (ec ErrorCode) Message() string {
	return ec.Descriptor().Message
}

// ExitCode returns the process exit code this error code maps to.
func (ec ErrorCode) ExitCode() int {
	return ec.Descriptor().ExitCode
}

// Error returns the error message for the error code.
func (ec ErrorCode) Error() string {
	return ec.Message()
}

// MarshalJSON encodes the ErrorCode as its string Value, rather than the
// process-local numeric identifier, so it is stable across runs.
func (ec ErrorCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(ec.String())
}

// UnmarshalJSON decodes an ErrorCode from its string Value.
func (ec *ErrorCode) UnmarshalJSON(payload []byte) error {
	var value string
	if err := json.Unmarshal(payload, &value); err != nil {
		return err
	}

	desc, ok := idToDescriptors[value]
	if !ok {
		*ec = ErrorCodeUnknown
		return nil
	}

	*ec = desc.Code
	return nil
}

// WithDetail creates a new Error struct based on the passed-in info and
// set the Detail property appropriately.
func (ec ErrorCode) WithDetail(detail interface{}) Error {
	return Error{
		Code:    ec,
		Message: ec.Message(),
	}.WithDetail(detail)
}

// WithArgs creates a new Error struct and sets the Args slice.
func (ec ErrorCode) WithArgs(args ...interface{}) Error {
	return Error{
		Code:    ec,
		Message: ec.Message(),
	}.WithArgs(args...)
}

// WithSpan creates a new Error struct with the given source Span.
func (ec ErrorCode) WithSpan(span Span) Error {
	return Error{
		Code:    ec,
		Message: ec.Message(),
	}.WithSpan(span)
}

// Error provides a wrapper around ErrorCode with extra Details provided.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
	Span    *Span       `json:"span,omitempty"`
}

// Span locates a parser error in its source manifest: the file it came
// from, and the byte offset and length of the offending token.
type Span struct {
	File   string `json:"file,omitempty"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// ErrorCode returns the ID/Value of this Error.
func (e Error) ErrorCode() ErrorCode {
	return e.Code
}

// Error returns a human readable representation of the error.
func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code.String(), e.Message)
}

// WithDetail will return a new Error, based on the current one, but with
// the Details put in the value of the current Error. The current error is
// left unmodified.
func (e Error) WithDetail(detail interface{}) Error {
	return Error{
		Code:    e.Code,
		Message: e.Message,
		Detail:  detail,
		Span:    e.Span,
	}
}

// WithArgs uses the passed-in list of arguments to format the error
// Message returned from the ErrorCode's Message() property. The resulting
// Error has its Message overwritten. The current error is left
// unmodified.
func (e Error) WithArgs(args ...interface{}) Error {
	return Error{
		Code:    e.Code,
		Message: fmt.Sprintf(e.Code.Message(), args...),
		Detail:  e.Detail,
		Span:    e.Span,
	}
}

// WithSpan attaches a source location to the error, overwriting any span
// the current error already carries. The current error is left
// unmodified.
func (e Error) WithSpan(span Span) Error {
	return Error{
		Code:    e.Code,
		Message: e.Message,
		Detail:  e.Detail,
		Span:    &span,
	}
}

// ErrorCoder is implemented by error types that can be represented as an
// ErrorCode.
type ErrorCoder interface {
	ErrorCode() ErrorCode
}

// Errors provides the envelope for multiple errors and a few sugar
// methods for use within the application.
type Errors []error

var _ error = Errors{}

func (errs Errors) Error() string {
	switch len(errs) {
	case 0:
		return "<nil>"
	case 1:
		return errs[0].Error()
	default:
		msg := "errors:\n"
		for _, err := range errs {
			msg += err.Error() + "\n"
		}
		return msg
	}
}

// MarshalJSON converts slice of error, ErrorCode, or Error into a
// slice of Error - then serializes.
func (errs Errors) MarshalJSON() ([]byte, error) {
	var tmpErrs struct {
		Errors []Error `json:"errors,omitempty"`
	}

	for _, daErr := range errs {
		var err Error

		switch daErr := daErr.(type) {
		case ErrorCode:
			err = daErr.WithDetail(nil)
		case Error:
			err = daErr
		default:
			err = ErrorCodeUnknown.WithDetail(daErr.Error())
		}

		tmpErrs.Errors = append(tmpErrs.Errors, err)
	}

	return json.Marshal(tmpErrs)
}

// UnmarshalJSON deserializes a payload into a slice of Error, matching
// the encoding written by MarshalJSON.
func (errs *Errors) UnmarshalJSON(data []byte) error {
	var tmpErrs struct {
		Errors []Error
	}

	if err := json.Unmarshal(data, &tmpErrs); err != nil {
		return err
	}

	var newErrs Errors
	for _, daErr := range tmpErrs.Errors {
		newErrs = append(newErrs, daErr)
	}
	*errs = newErrs
	return nil
}

// Is returns whether the error matches the given ErrorCode, looking
// through Error wrappers as necessary. It mirrors the behavior expected
// by errors.Is for a comparable target.
func Is(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case ErrorCode:
		return e == code
	case Error:
		return e.Code == code
	default:
		return false
	}
}
