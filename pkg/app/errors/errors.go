// Package errors classifies failures of jobs and HTTP requests into
// categories that map onto HTTP status codes and job error categories.
package errors

import (
	"errors"
	"net/http"
)

// Category classifies a ServiceError. The order matters: categories from
// CategoryDependencyFailure on are internal.
type Category int

const (
	// CategoryDataError is malformed or invalid input
	CategoryDataError Category = iota + 1
	// CategoryUnauthorized is a missing or invalid caller identity
	CategoryUnauthorized
	// CategoryResourceNotFound is a reference to a row or method that does not exist
	CategoryResourceNotFound
	// CategoryDataConflict is input clashing with stored state
	CategoryDataConflict
	// CategoryInsufficientFunds is a signer balance below the estimated cost
	CategoryInsufficientFunds
	// CategoryDependencyFailure is a chain, RPC or IPFS failure
	CategoryDependencyFailure
	// CategoryGeneralError is anything unexpected
	CategoryGeneralError
)

var categoryNames = map[Category]string{
	CategoryDataError:         "CategoryDataError",
	CategoryUnauthorized:      "CategoryUnauthorized",
	CategoryResourceNotFound:  "CategoryResourceNotFound",
	CategoryDataConflict:      "CategoryDataConflict",
	CategoryInsufficientFunds: "CategoryInsufficientFunds",
	CategoryDependencyFailure: "CategoryDependencyFailure",
	CategoryGeneralError:      "CategoryGeneralError",
}

var categoryStatus = map[Category]int{
	CategoryDataError:         http.StatusBadRequest,
	CategoryUnauthorized:      http.StatusUnauthorized,
	CategoryResourceNotFound:  http.StatusNotFound,
	CategoryDataConflict:      http.StatusConflict,
	CategoryInsufficientFunds: http.StatusPaymentRequired,
	CategoryDependencyFailure: http.StatusBadGateway,
	CategoryGeneralError:      http.StatusInternalServerError,
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[CategoryGeneralError]
}

// ServiceError carries a category, a message safe to show to callers and
// the underlying cause, which is only logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is matches a target with the same message
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	if status, ok := categoryStatus[err.Category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// IsInternalError reports whether err is a failure of the service or its
// dependencies rather than of the caller's input.
func IsInternalError(err error) bool {
	return CategoryOf(err) >= CategoryDependencyFailure
}

// CategoryOf returns the category of a ServiceError, or CategoryGeneralError
// for any other error.
func CategoryOf(err error) Category {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Category
	}
	return CategoryGeneralError
}

func newError(cat Category, err error, message, fallback string) error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error"
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error", "internal server error")
}

// ResourceNotFoundError returns an error with category ResourceNotFound
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message, "resource not found: "+message)
}

// BadRequestError returns an error with category DataError
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message, "bad request: "+message)
}

// UnAuthorizedError returns an error with category Unauthorized
func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message, "unauthorized")
}

// ConflictError returns an error with category DataConflict
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message, "conflict")
}

// InsufficientFundsError returns an error with category InsufficientFunds
func InsufficientFundsError(err error, message string) error {
	return newError(CategoryInsufficientFunds, err, message, "insufficient funds")
}

// DependencyFailureError returns an error with category DependencyFailure
func DependencyFailureError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message, "dependency failure: "+message)
}
