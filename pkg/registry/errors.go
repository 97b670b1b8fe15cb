package registry

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRecordNotFound is returned when no registration matches the key or transaction id
	ErrRecordNotFound = errors.New("registration not found")

	// ErrDuplicateTransaction is returned when a transaction id is already registered
	ErrDuplicateTransaction = errors.New("transaction id already registered")

	// ErrVersionConflict is returned when a record changed between read and write
	ErrVersionConflict = errors.New("registration version conflict")

	// ErrRecordTrashed is returned when an operation targets a trashed registration
	ErrRecordTrashed = errors.New("registration is trashed")

	// ErrInvalidRegistration is returned for registrations missing required fields
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidPeriod is returned for period text that cannot be parsed
	ErrInvalidPeriod = errors.New("invalid period")
)

// APIError is the error payload returned by registry operations.
type APIError struct {
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError converts err into an APIError with a status code matching its cause.
func NewAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrRecordNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrDuplicateTransaction), errors.Is(err, ErrVersionConflict):
		code = http.StatusConflict
	case errors.Is(err, ErrRecordTrashed):
		code = http.StatusGone
	case errors.Is(err, ErrInvalidRegistration):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrCircuitOpen):
		code = http.StatusServiceUnavailable
	}
	return &APIError{Code: code, Message: err.Error(), Err: err}
}
