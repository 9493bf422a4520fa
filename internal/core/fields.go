// Package core implements the report submission and validation workflow:
// schema-driven field descriptors, pre-submission field validation, the
// dual-mode entry surface, the submission wizard state machine, and the
// post-submission validation controller. It has no HTTP dependencies and
// can be driven by any frontend.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/fincollect/console/internal/reporting"
)

// DataType is the declared type of an MDRM field. It is a runtime tag,
// open to extension; only the types below get a client-side validator.
type DataType string

const (
	TypeString DataType = "string"
	TypeNumber DataType = "number"
)

// FieldErrorKind classifies a field-level validation failure.
type FieldErrorKind string

const (
	RequiredFieldMissing FieldErrorKind = "required_field_missing"
	TypeMismatch         FieldErrorKind = "type_mismatch"
)

// FieldError is an inline, per-field validation error. It never blocks
// other fields from being corrected independently.
type FieldError struct {
	Kind    FieldErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// FieldDescriptor is one data-entry field generated at runtime from a
// series' MDRM metadata. Value is always the string representation,
// regardless of the declared type.
type FieldDescriptor struct {
	MDRMID      string      `json:"mdrm_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	DataType    DataType    `json:"data_type"`
	Value       string      `json:"value"`
	Err         *FieldError `json:"error,omitempty"`
}

// SetValue records a new value and clears any prior error, so the error
// display always reflects the latest input rather than a stale result.
func (d *FieldDescriptor) SetValue(v string) {
	d.Value = v
	d.Err = nil
}

// ValidateField evaluates the pre-submission rules for one descriptor.
// It returns nil when the value passes, and never mutates the descriptor.
//
// Rules, in order: a trimmed-empty value fails with RequiredFieldMissing
// (overriding any type check); a number-typed value that does not parse
// as a finite number fails with TypeMismatch. Other declared types are
// not validated client-side.
func ValidateField(d FieldDescriptor) *FieldError {
	v := strings.TrimSpace(d.Value)
	if v == "" {
		return &FieldError{Kind: RequiredFieldMissing, Message: "This field is required"}
	}

	if d.DataType == TypeNumber {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return &FieldError{Kind: TypeMismatch, Message: "Must be a number"}
		}
	}

	return nil
}

// FieldsFromSeries projects a series definition into an ordered slice of
// descriptors, each initialized with an empty value and no error.
//
// Bare-identifier elements (no resolved metadata) default to the
// identifier as the display name, an empty description, and the string
// type.
func FieldsFromSeries(s *reporting.Series) []FieldDescriptor {
	fields := make([]FieldDescriptor, 0, len(s.Elements))
	for _, el := range s.Elements {
		name := el.Name
		if name == "" {
			name = el.MDRMID
		}
		dataType := DataType(el.DataType)
		if dataType == "" {
			dataType = TypeString
		}
		fields = append(fields, FieldDescriptor{
			MDRMID:      el.MDRMID,
			Name:        name,
			Description: el.Description,
			DataType:    dataType,
		})
	}
	return fields
}
