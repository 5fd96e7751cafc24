package errors

import (
	"errors"
	"testing"
)

func TestCommandFailureUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &CommandFailure{File: "README.md", Block: 2, Command: "false", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match wrapped cause")
	}
	want := `README.md: block 2: command "false" failed: exit status 1`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAssertionFailureMessage(t *testing.T) {
	err := &AssertionFailure{File: "docs/quickstart.md", Block: 0, Reason: "output does not contain \"OK\""}
	want := `docs/quickstart.md: block 0: assertion failed: output does not contain "OK"`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestInterruptedWithoutContext(t *testing.T) {
	err := &Interrupted{}
	if err.Error() != "run interrupted" {
		t.Fatalf("Error() = %q, want generic message", err.Error())
	}
}

func TestConfigurationErrorUnwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &ConfigurationError{Path: "config.json", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match wrapped cause")
	}
}
