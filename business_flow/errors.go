// Package businessflow contains the core business logic and use cases for the tender pipeline
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Ingestion errors
	ErrSourceRequired     = errors.New("ingestion source is required")
	ErrTenderListFetch    = errors.New("failed to fetch tender list from source")
	ErrConnectorExhausted = errors.New("connector fetch retries exhausted")

	// Normalization errors
	ErrTitleMissing      = errors.New("tender title is required")
	ErrRawPayloadInvalid = errors.New("raw payload is not a JSON object")

	// Indexing errors
	ErrCanonicalSnapshotMissing = errors.New("revision has no canonical snapshot")

	// Match & notify errors
	ErrRevisionNotFound      = errors.New("tender revision not found")
	ErrRevisionNotNormalized = errors.New("tender revision has not been normalized successfully")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsTitleMissing(err error) bool {
	return errors.Is(err, ErrTitleMissing)
}

func IsRawPayloadInvalid(err error) bool {
	return errors.Is(err, ErrRawPayloadInvalid)
}

func IsRevisionNotFound(err error) bool {
	return errors.Is(err, ErrRevisionNotFound)
}

func IsRevisionNotNormalized(err error) bool {
	return errors.Is(err, ErrRevisionNotNormalized)
}

func IsConnectorExhausted(err error) bool {
	return errors.Is(err, ErrConnectorExhausted)
}
