package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetKindFindsWrappedError(t *testing.T) {
	base := Conflict("deal changed concurrently").WithOp("deals.update")
	wrapped := fmt.Errorf("apply transition: %w", base)

	if got := GetKind(wrapped); got != KindConflict {
		t.Fatalf("expected KindConflict, got %v", got)
	}
	if !Is(wrapped, KindConflict) {
		t.Fatal("expected Is to match wrapped conflict")
	}
}

func TestGetKindUnknownForPlainErrors(t *testing.T) {
	if got := GetKind(errors.New("boom")); got != KindUnknown {
		t.Fatalf("expected KindUnknown, got %v", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("quote not found"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("race"), http.StatusConflict},
		{Internal("oops"), http.StatusInternalServerError},
		{Unavailable("redis down", errors.New("dial tcp")), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("%s: expected status %d, got %d", tc.err.Kind, tc.want, got)
		}
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("claim store unreachable", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected Unavailable to unwrap to its cause")
	}
	if err.Error() != "claim store unreachable: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
