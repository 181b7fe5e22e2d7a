package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus_MapsTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotAuthenticated, http.StatusUnauthorized},
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyProcessed, http.StatusConflict},
		{ErrInsufficientCredits, http.StatusPaymentRequired},
		{ErrAssessmentsDisallowed, http.StatusForbidden},
		{New(ErrInvalidInput, "amount must be positive"), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v)=%d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessage_HidesInternalErrors(t *testing.T) {
	if got := Message(errors.New("sql: connection refused"), "query failed"); got != "query failed" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := Message(New(ErrConflict, "Wallet already connected"), "x"); got != "Wallet already connected" {
		t.Fatalf("expected custom message, got %q", got)
	}
}
