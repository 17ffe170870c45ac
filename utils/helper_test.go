package utils

import (
	"testing"
	"time"
)

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(time.February, 2024)
	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %s", start)
	}
	// Leap year February ends on March 1st.
	if !end.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %s", end)
	}
}

func TestMonthRangeDecemberRollsOver(t *testing.T) {
	start, end := MonthRange(time.December, 2025)
	if !start.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %s", start)
	}
	if !end.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %s", end)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("", CountryCode); err != nil {
		t.Errorf("empty phone should pass: %v", err)
	}
	if err := ValidatePhoneNumber("+249912345678", CountryCode); err != nil {
		t.Errorf("international format rejected: %v", err)
	}
	if err := ValidatePhoneNumber("0912345678", CountryCode); err != nil {
		t.Errorf("national format rejected: %v", err)
	}
	if err := ValidatePhoneNumber("12345", CountryCode); err == nil {
		t.Error("short number should be rejected")
	}
	if err := ValidatePhoneNumber("not a phone", CountryCode); err == nil {
		t.Error("garbage should be rejected")
	}
}

func TestParseDecimal(t *testing.T) {
	if _, err := ParseDecimal(""); err == nil {
		t.Error("empty string should error")
	}
	dec, err := ParseDecimal(" 12.5 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if dec.String() != "12.5" {
		t.Errorf("got %s, want 12.5", dec)
	}
}
