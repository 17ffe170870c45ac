package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// Default region for phone numbers entered without a country prefix.
var CountryCode = "SD"

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// ValidatePhoneNumber checks the number against the region's numbering plan.
// An empty number passes; phone fields are optional.
func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	if strings.TrimSpace(phoneNumber) == "" {
		return nil
	}

	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return fmt.Errorf("%w: %s is not a phone number", ErrorValidation, phoneNumber)
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("%w: %s is not a valid phone number for %s", ErrorValidation, phoneNumber, countryCode)
	}

	return nil
}

// MonthRange returns the [start, end) window of the given month in UTC.
// Zero month/year default to the current month.
func MonthRange(month time.Month, year int) (time.Time, time.Time) {
	now := time.Now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
