// Package validation checks user input before any state change is attempted.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrValidation is matched by every *Error via errors.Is.
var ErrValidation = errors.New("validation failed")

// DefaultWeightTolerance is the allowed distance of a target's total weight from 100.
var DefaultWeightTolerance = decimal.RequireFromString("0.01")

// Error collects per-field validation messages.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, field := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(msgs, "; ")
}

// Is reports ErrValidation as a match.
func (e *Error) Is(target error) bool {
	return target == ErrValidation
}

// fieldErrors returns nil for an empty map so callers can `return fieldErrors(errs)`.
func fieldErrors(errs map[string]string) error {
	if len(errs) == 0 {
		return nil
	}
	return &Error{Fields: errs}
}

// DecodeStrict decodes a single JSON value into T, rejecting unknown fields.
func DecodeStrict[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, &Error{Fields: map[string]string{"body": err.Error()}}
	}
	return v, nil
}
