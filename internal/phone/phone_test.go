package phone

import (
	"errors"
	"testing"
)

func TestNormalizeStripsSeparators(t *testing.T) {
	n := Normalizer{DefaultCountryCode: "+221"}

	cases := map[string]string{
		"+221 77 123 45 67": "+221771234567",
		"+33-6.12(34)56 78": "+33612345678",
		"221771234567":      "+221771234567",
		"+221771234567":     "+221771234567",
	}
	for raw, want := range cases {
		got, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeTrunkPrefix(t *testing.T) {
	n := Normalizer{DefaultCountryCode: "+221"}
	got, err := n.Normalize("0771234567")
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got != "+221771234567" {
		t.Errorf("Normalize(\"0771234567\") = %q, want +221771234567", got)
	}
}

func TestNormalizeTooShort(t *testing.T) {
	n := Normalizer{DefaultCountryCode: "+221"}
	for _, raw := range []string{"", "12345", "+33 12 34", "012345678"} {
		_, err := n.Normalize(raw)
		if err == nil {
			t.Errorf("Normalize(%q) should fail", raw)
			continue
		}
		var invalid *InvalidPhoneError
		if !errors.As(err, &invalid) {
			t.Errorf("Normalize(%q) error = %T, want *InvalidPhoneError", raw, err)
		}
	}
}

func TestNormalizeNonDigits(t *testing.T) {
	n := Normalizer{DefaultCountryCode: "+221"}
	if _, err := n.Normalize("+22177abc4567"); err == nil {
		t.Error("Normalize should reject non-digit characters")
	}
	if _, err := n.Normalize("+2217+1234567"); err == nil {
		t.Error("Normalize should reject an inner '+'")
	}
}
