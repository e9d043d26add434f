package result

import (
	"errors"
	"testing"
)

func TestResultKinds(t *testing.T) {
	ok := Ok(7)
	if !ok.OK() || ok.Err() != nil || ok.Value != 7 {
		t.Fatalf("unexpected ok result: %+v", ok)
	}

	cancelled := Fail[int](KindCancelled, "Sign-in cancelled")
	if cancelled.OK() || !cancelled.Cancelled() || cancelled.Err() != nil {
		t.Fatalf("cancelled result must not be an error: %+v", cancelled)
	}

	failed := Fail[string](KindInvalidCredentials, "Invalid email or password")
	var resErr *Error
	if !errors.As(failed.Err(), &resErr) || resErr.Kind != KindInvalidCredentials {
		t.Fatalf("expected *Error with kind, got %v", failed.Err())
	}
	if failed.Err().Error() != "invalid_credentials: Invalid email or password" {
		t.Fatalf("unexpected message %q", failed.Err().Error())
	}

	if Fail[int](KindNone, "").Kind != KindInternal {
		t.Fatalf("expected empty kind to become internal")
	}

	partial := Partial("default", KindStorage, "write failed")
	if partial.OK() || partial.Value != "default" {
		t.Fatalf("unexpected partial result: %+v", partial)
	}
}
