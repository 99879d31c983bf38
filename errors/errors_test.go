package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if result := test.class.String(); result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutError{}}, true},
		{"wrapped transient", WrapTransient(io.EOF, "natsclient", "Connect", "dial"), true},
		{"rate limited", ErrRateLimited, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"unknown ident", ErrUnknownIdent, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsTransient(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"data corrupted", ErrDataCorrupted, true},
		{"wrapped fatal", WrapFatal(io.EOF, "relay", "Start", "bind"), true},
		{"parsing failed", ErrParsingFailed, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsFatal(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"parsing failed", ErrParsingFailed, true},
		{"unknown ident", ErrUnknownIdent, true},
		{"wrapped invalid", WrapInvalid(errors.New("bad"), "event", "Parse", "match"), true},
		{"rate limited", ErrRateLimited, false},
		{"fatal class overrides sentinel", WrapFatal(ErrUnknownIdent, "tcp-input", "handleFrame", "lookup"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsInvalid(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"transient", ErrRateLimited, ErrorTransient},
		{"nil", nil, ErrorTransient},
		{"unknown ident", Wrap(ErrUnknownIdent, "tcp-input", "handleFrame", "lookup"), ErrorInvalid},
		{"fatal", ErrInvalidConfig, ErrorFatal},
		{"invalid", ErrParsingFailed, ErrorInvalid},
		{"unknown defaults to transient", errors.New("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := Classify(test.err); result != test.expected {
				t.Errorf("expected %v, got %v", test.expected, result)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "c", "m", "a") != nil {
		t.Fatal("wrapping nil should return nil")
	}

	err := Wrap(io.EOF, "tcp-input", "readLine", "socket read")
	expected := "tcp-input.readLine: socket read failed: EOF"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, io.EOF) {
		t.Error("wrapped error should match the original with errors.Is")
	}
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	err := WrapInvalid(base, "webhook", "Execute", "status check")
	var ce *ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatal("expected ClassifiedError")
	}
	if ce.Class != ErrorInvalid || ce.Component != "webhook" || ce.Operation != "Execute" {
		t.Errorf("unexpected classified error: %+v", ce)
	}
	if !errors.Is(err, base) {
		t.Error("classified error should unwrap to base")
	}

	for _, wrap := range []func(error, string, string, string) error{WrapTransient, WrapInvalid, WrapFatal} {
		if wrap(nil, "c", "m", "a") != nil {
			t.Error("wrapping nil should return nil")
		}
	}
}

func TestIsConnectionClosed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"net closed", net.ErrClosed, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"other", errors.New("nope"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsConnectionClosed(test.err); result != test.expected {
				t.Errorf("expected %v, got %v", test.expected, result)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o deadline" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
