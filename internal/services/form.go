// Package services – request form validation
//
// A rescue request carries five free-text fields. Each is trimmed and put in
// Unicode NFC form (chat clients on different platforms send composed and
// decomposed accents interchangeably), then checked for presence and length.
package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

// Field length limits, in runes. Short fields match the single-line inputs of
// the request form, long fields the paragraph inputs.
const (
	DefaultMaxShortRunes = 100
	DefaultMaxLongRunes  = 1000
)

// FieldError describes one invalid form field.
type FieldError struct {
	Field  string `json:"field"  example:"location"`
	Reason string `json:"reason" example:"required"`
}

// FormError lists every invalid field of a request form. It matches
// ErrInvalidForm under errors.Is.
type FormError struct {
	Fields []FieldError
}

func (e *FormError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return ErrInvalidForm.Error() + ": " + strings.Join(parts, "; ")
}

func (e *FormError) Unwrap() error { return ErrInvalidForm }

// normalizeForm trims and NFC-normalizes every field and validates the result.
func normalizeForm(f domain.RequestForm, maxShort, maxLong int) (domain.RequestForm, error) {
	out := domain.RequestForm{
		Cause:         normalizeField(f.Cause),
		GalaxySystem:  normalizeField(f.GalaxySystem),
		Location:      normalizeField(f.Location),
		TimeRemaining: normalizeField(f.TimeRemaining),
		Hazards:       normalizeField(f.Hazards),
	}

	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"cause", out.Cause, maxShort},
		{"galaxy_system", out.GalaxySystem, maxShort},
		{"location", out.Location, maxLong},
		{"time_remaining", out.TimeRemaining, maxShort},
		{"hazards", out.Hazards, maxLong},
	}

	var errs []FieldError
	for _, fd := range fields {
		switch {
		case fd.value == "":
			errs = append(errs, FieldError{Field: fd.name, Reason: "required"})
		case fd.max > 0 && utf8.RuneCountInString(fd.value) > fd.max:
			errs = append(errs, FieldError{Field: fd.name, Reason: fmt.Sprintf("exceeds %d characters", fd.max)})
		}
	}
	if len(errs) > 0 {
		return out, &FormError{Fields: errs}
	}
	return out, nil
}

func normalizeField(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
