// Package errcode provides a toolkit for defining and assigning stable
// error codes across pkg6repo. An ErrorCode is identified globally by a
// string value of the form "namespace::category_error[::specific]" (the
// taxonomy pkg6repo's CLI and read API report to callers); when an
// ErrorCode is registered it is also assigned a value unique to the
// process, which can be used for identity tests.
//
// Use of this package is defined by the following flow:
//   - Each error is registered with the errcode package via the Register()
//     function. The group name allows errors to be associated with a
//     particular component (fmri, action, blob, repo, catalog, search).
//     The ErrorDescriptor describes the error itself. Register() returns
//     an ErrorCode that uniquely identifies the registered error.
//   - Once registered, the ErrorCode can be used just like any other Go
//     error.
//   - If a particular error needs additional information, WithArgs() and
//     WithDetail() are available. WithArgs() substitutes "%s"-style
//     variables in the error's message. WithDetail() attaches arbitrary
//     structured detail. WithSpan() attaches a source location for parser
//     failures (file name, byte offset, length).
//
// The package consists of three main resource types:
//
//   - ErrorCode: a unique (numerical) identifier for a particular error
//     registered with the errcode package, returned by Register.
//   - ErrorDescriptor: describes a single error condition — its stable
//     Value string, human Message, longer Description, and the process
//     ExitCode it maps to on the CLI.
//   - Error: extends an ErrorCode with the substituted message, optional
//     detail, and optional Span.
package errcode
