package errcode

import (
	"encoding/json"
	"testing"
)

// TestErrorCodes ensures that error code registration, lookups, and
// marshal/unmarshal round trips are stable.
func TestErrorCodes(t *testing.T) {
	if len(errorCodeToDescriptors) == 0 {
		t.Fatal("errors aren't loaded!")
	}

	for ec, desc := range errorCodeToDescriptors {
		if ec != desc.Code {
			t.Fatalf("error code in descriptor isn't correct, %v != %v", ec, desc.Code)
		}

		if idToDescriptors[desc.Value].Code != ec {
			t.Fatalf("error code in idToDesc isn't correct, %v != %v", idToDescriptors[desc.Value].Code, ec)
		}

		p, err := json.Marshal(ec)
		if err != nil {
			t.Fatalf("couldn't marshal ec %v: %v", ec, err)
		}

		var ecUnspecified interface{}
		if err := json.Unmarshal(p, &ecUnspecified); err != nil {
			t.Fatalf("error unmarshaling error code %v: %v", ec, err)
		}

		if _, ok := ecUnspecified.(string); !ok {
			t.Fatalf("expected a string for error code %v on unmarshal, got a %T", ec, ecUnspecified)
		}

		var ecUnmarshaled ErrorCode
		if err := json.Unmarshal(p, &ecUnmarshaled); err != nil {
			t.Fatalf("error unmarshaling error code %v: %v", ec, err)
		}

		if ecUnmarshaled != ec {
			t.Fatalf("unexpected error code during marshal/unmarshal: %v != %v", ecUnmarshaled, ec)
		}
	}
}

var errorCodeTest1 = Register("test", ErrorDescriptor{
	Value:    "test::validation_error::one",
	Message:  "test error 1",
	ExitCode: 1,
})

var errorCodeTest2 = Register("test", ErrorDescriptor{
	Value:    "test::not_found_error::two",
	Message:  "test error 2",
	ExitCode: 5,
})

var errorCodeTest3 = Register("test", ErrorDescriptor{
	Value:    "test::validation_error::three",
	Message:  "sorry %q isn't valid",
	ExitCode: 1,
})

func TestErrorsManagement(t *testing.T) {
	var errs Errors

	errs = append(errs, errorCodeTest1)
	errs = append(errs, errorCodeTest2.WithDetail(
		map[string]interface{}{"fmri": "pkg://test/foo@1.0"}))
	errs = append(errs, errorCodeTest3.WithArgs("BOOGIE"))

	p, err := json.Marshal(errs)
	if err != nil {
		t.Fatalf("error marshaling errors: %v", err)
	}

	expectedJSON := `{"errors":[` +
		`{"code":"test::validation_error::one","message":"test error 1"},` +
		`{"code":"test::not_found_error::two","message":"test error 2","detail":{"fmri":"pkg://test/foo@1.0"}},` +
		`{"code":"test::validation_error::three","message":"sorry \"BOOGIE\" isn't valid"}` +
		`]}`

	if string(p) != expectedJSON {
		t.Fatalf("unexpected json:\ngot:\n%s\n\nexpected:\n%s", p, expectedJSON)
	}

	// Calling WithArgs() more than once must not mutate the shared ErrorCode.
	e1 := errorCodeTest3.WithArgs("first")
	e2 := e1.WithArgs("second")
	if e1.Message == e2.Message {
		t.Fatalf("expected distinct messages from repeated WithArgs, got %q twice", e1.Message)
	}

	e1 = errorCodeTest3.WithDetail("stuff1")
	e2 = e1.WithDetail("stuff2")
	if e2.Detail != "stuff2" {
		t.Fatalf("e2 had wrong detail: %q", e2.Detail)
	}
	if e1.Detail != "stuff1" {
		t.Fatalf("e1 was mutated by e2's WithDetail: %q", e1.Detail)
	}
}

func TestErrorWithSpan(t *testing.T) {
	e := ErrorCodeActionMissingProperty.WithArgs("path").WithSpan(Span{File: "manifest", Offset: 12, Length: 4})
	if e.Span == nil || e.Span.File != "manifest" || e.Span.Offset != 12 || e.Span.Length != 4 {
		t.Fatalf("unexpected span: %+v", e.Span)
	}
	if e.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestIs(t *testing.T) {
	if !Is(ErrorCodeBlobMissing, ErrorCodeBlobMissing) {
		t.Fatal("expected Is to match identical ErrorCode")
	}
	if !Is(ErrorCodeBlobMissing.WithArgs("sha256:abc"), ErrorCodeBlobMissing) {
		t.Fatal("expected Is to match an Error wrapping the ErrorCode")
	}
	if Is(ErrorCodeBlobMissing, ErrorCodeSearchNoMatch) {
		t.Fatal("did not expect Is to match a different ErrorCode")
	}
}
