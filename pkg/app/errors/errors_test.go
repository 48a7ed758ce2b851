package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestServiceError_StatusCode(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", BadRequestError(cause, "bad"), http.StatusBadRequest},
		{"not found", ResourceNotFoundError(cause, "missing"), http.StatusNotFound},
		{"insufficient funds", InsufficientFundsError(cause, "balance too low"), http.StatusPaymentRequired},
		{"dependency failure", DependencyFailureError(cause, "chain rejected"), http.StatusBadGateway},
		{"conflict", ConflictError(cause, "exists"), http.StatusConflict},
		{"unauthorized", UnAuthorizedError(nil, "missing bearer token"), http.StatusUnauthorized},
		{"general", GeneralError(cause), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var svcErr *ServiceError
			if !errors.As(tt.err, &svcErr) {
				t.Fatalf("expected ServiceError, got %T", tt.err)
			}
			if got := svcErr.StatusCode(); got != tt.want {
				t.Fatalf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestServiceError_UnwrapsCause(t *testing.T) {
	sentinel := errors.New("insufficient balance")
	err := fmt.Errorf("deploy: %w", InsufficientFundsError(sentinel, "insufficient balance"))

	if !errors.Is(err, sentinel) {
		t.Fatal("expected wrapped sentinel to match")
	}
	if !Is(err, CategoryInsufficientFunds) {
		t.Fatalf("expected CategoryInsufficientFunds, got %v", CategoryOf(err))
	}
	if IsInternalError(err) {
		t.Fatal("insufficient funds must not be reported as internal")
	}
}

func TestCategoryOf_PlainError(t *testing.T) {
	if got := CategoryOf(errors.New("plain")); got != CategoryGeneralError {
		t.Fatalf("CategoryOf() = %v, want CategoryGeneralError", got)
	}
	if got := CategoryOf(DependencyFailureError(nil, "rpc down")); got.String() != "CategoryDependencyFailure" {
		t.Fatalf("unexpected category %s", got)
	}
}

func TestIsInternalError(t *testing.T) {
	internal := []error{GeneralError(nil), DependencyFailureError(nil, "ipfs down"), errors.New("plain")}
	for _, err := range internal {
		if !IsInternalError(err) {
			t.Fatalf("expected %v to be internal", err)
		}
	}
	external := []error{BadRequestError(nil, "bad"), UnAuthorizedError(nil, "no token"), ConflictError(nil, "exists")}
	for _, err := range external {
		if IsInternalError(err) {
			t.Fatalf("expected %v not to be internal", err)
		}
	}
	if got := Category(0).String(); got != "CategoryGeneralError" {
		t.Fatalf("unknown category String() = %s", got)
	}
}
