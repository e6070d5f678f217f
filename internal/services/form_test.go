package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

func TestNormalizeForm_TrimsAndComposes(t *testing.T) {
	f := validForm()
	f.GalaxySystem = "  Pyró " // decomposed acute accent
	f.Hazards = "\tnone\n"

	got, err := normalizeForm(f, DefaultMaxShortRunes, DefaultMaxLongRunes)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.GalaxySystem != "Pyró" {
		t.Fatalf("want NFC-composed value, got %q", got.GalaxySystem)
	}
	if got.Hazards != "none" {
		t.Fatalf("want trimmed value, got %q", got.Hazards)
	}
}

func TestNormalizeForm_ReportsEveryField(t *testing.T) {
	_, err := normalizeForm(domain.RequestForm{}, DefaultMaxShortRunes, DefaultMaxLongRunes)
	if !errors.Is(err, ErrInvalidForm) {
		t.Fatalf("expected ErrInvalidForm, got %v", err)
	}
	var fe *FormError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormError, got %T", err)
	}
	want := []string{"cause", "galaxy_system", "location", "time_remaining", "hazards"}
	if len(fe.Fields) != len(want) {
		t.Fatalf("fields = %+v", fe.Fields)
	}
	for i, f := range fe.Fields {
		if f.Field != want[i] || f.Reason != "required" {
			t.Fatalf("field %d = %+v", i, f)
		}
	}
}

func TestNormalizeForm_LengthLimits(t *testing.T) {
	f := validForm()
	f.Cause = strings.Repeat("é", 11)   // 11 runes, 22 bytes
	f.Location = strings.Repeat("x", 20) // within long limit

	_, err := normalizeForm(f, 10, 20)
	var fe *FormError
	if !errors.As(err, &fe) || len(fe.Fields) != 1 {
		t.Fatalf("expected one field error, got %v", err)
	}
	if fe.Fields[0].Field != "cause" || fe.Fields[0].Reason != "exceeds 10 characters" {
		t.Fatalf("unexpected: %+v", fe.Fields[0])
	}
	if !strings.Contains(err.Error(), "cause: exceeds 10 characters") {
		t.Fatalf("error text = %q", err.Error())
	}

	// Zero limits disable the length check.
	f.Cause = strings.Repeat("a", 5000)
	if _, err := normalizeForm(f, 0, 0); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
