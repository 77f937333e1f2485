// Package flowerrors contains the error types returned by the flowload driver and its API client.
//
// Per-batch dispatch problems are not errors: they are recorded as outcomes on the batch result.
// The types here describe conditions that abort a run or reject a request before it is sent.
// If several problems are found at once (e.g., multiple invalid run parameters), the caller
// receives a multierror.Error from github.com/hashicorp/go-multierror wrapping each of them.
package flowerrors

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned when a run parameter or request argument is invalid.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "batchSize"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrConfigurationRejected is returned when the ingestion service refuses a stream configuration,
// or when the configuration it reports back doesn't match what was applied.
type ErrConfigurationRejected struct {
	Stream string
	// HTTP status returned by the service, zero if no response was received
	StatusCode int
	Message    string
}

func (err *ErrConfigurationRejected) Error() string {
	s := fmt.Sprintf("configuration for stream %q rejected", err.Stream)
	if err.StatusCode != 0 {
		s += fmt.Sprintf(" with status %d", err.StatusCode)
	}
	if err.Message != "" {
		s += fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrSchemaViolation indicates a generated record doesn't conform to the stream schema.
type ErrSchemaViolation struct {
	Stream string
	// Index of the offending record within the full record range
	RecordIndex int
	Field       string
	Message     string
}

func (err *ErrSchemaViolation) Error() string {
	s := fmt.Sprintf("record %d violates schema of stream %q", err.RecordIndex, err.Stream)
	if err.Field != "" {
		s += fmt.Sprintf(" at field %q", err.Field)
	}
	if err.Message != "" {
		s += fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrRunCancelled is returned by the runner when the run was cancelled before all passes completed.
type ErrRunCancelled struct {
	CompletedPasses int
	RequestedPasses int
}

func (err *ErrRunCancelled) Error() string {
	return fmt.Sprintf("run cancelled after %d of %d passes", err.CompletedPasses, err.RequestedPasses)
}

// ErrNotFound is returned by the query client when the service has no such resource.
type ErrNotFound struct {
	Type  string
	Value string
}

func (err *ErrNotFound) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("%s %q does not exist", err.Type, err.Value)
	}
	return fmt.Sprintf("resource %q does not exist", err.Value)
}

// IsFatal reports whether err should abort a run immediately.
// Uses errors.As to look through the chain of errors, including all errors wrapped by a multierror.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if merr, ok := err.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			if IsFatal(e) {
				return true
			}
		}
		return false
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrConfigurationRejected
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrSchemaViolation
		if errors.As(err, &e) {
			return true
		}
	}
	return false
}

// IsCancelled reports whether err, or any error it wraps, is an ErrRunCancelled.
func IsCancelled(err error) bool {
	var e *ErrRunCancelled
	return errors.As(err, &e)
}
