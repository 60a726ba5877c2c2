// Package verr defines the error-kind taxonomy shared across the core so
// that every layer (worker, deliverer, inbound processor, HTTP boundary)
// agrees on how a failure maps to caller-visible behavior.
package verr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation/HTTP-mapping purposes.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Conflict
	Model
	Broker
	Upstream
	Serialization
	URL
	ASValidation
	Webfinger
	NoReply
	AmqpConfigMissing
)

// Error is a kinded error. Model errors carry their own HTTP status since
// the graph DB layer is in the best position to know it.
type Error struct {
	Kind       Kind
	Message    string
	ModelCode  int
	Err        error
	NotFoundOf string
	Params     map[string]string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps a Kind to the HTTP boundary's status code:
// NotFound->404, Conflict->409, Model forwards its own code, else 500.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Model:
		if e.ModelCode != 0 {
			return e.ModelCode
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewNotFound builds a NotFound error naming the model and the lookup
// parameters that missed.
func NewNotFound(model string, params map[string]string) *Error {
	return &Error{
		Kind:       NotFound,
		Message:    fmt.Sprintf("%s not found", model),
		NotFoundOf: model,
		Params:     params,
	}
}

func NewInternal(message string) *Error {
	return &Error{Kind: Internal, Message: message}
}

func NewConflict(message string) *Error {
	return &Error{Kind: Conflict, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HTTPStatus extracts the HTTP status for any error, defaulting unkinded
// errors to 500.
func HTTPStatus(err error) int {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.HTTPStatus()
	}
	return http.StatusInternalServerError
}
