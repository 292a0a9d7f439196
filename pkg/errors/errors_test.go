package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeTransientBroker, cause, "publish failed")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if got := CodeOf(err); got != CodeTransientBroker {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestCodeOfThroughWrappedChain(t *testing.T) {
	inner := New(CodeStorageUnavailable, "dead letter insert failed")
	outer := fmt.Errorf("dispatcher: %w", inner)

	if got := CodeOf(outer); got != CodeStorageUnavailable {
		t.Fatalf("unexpected code %q", got)
	}
	if !Fatal(outer) {
		t.Fatalf("storage unavailable must be fatal")
	}
}

func TestRetryableByCode(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeTransaction, false},
		{CodeSerialization, false},
		{CodeTransientBroker, true},
		{CodePermanentHandler, false},
		{CodeStorageUnavailable, false},
		{CodeInternal, true},
	}
	for _, tc := range cases {
		if got := Retryable(New(tc.code, "x")); got != tc.want {
			t.Fatalf("retryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestCodeOfPlainErrorDefaultsToInternal(t *testing.T) {
	if got := CodeOf(stdErrors.New("boom")); got != CodeInternal {
		t.Fatalf("unexpected code %q", got)
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should be nil")
	}
}
