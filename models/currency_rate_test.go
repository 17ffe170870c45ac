package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFallbackRates(t *testing.T) {
	if got := fallbackRate(CurrencyCodeUSD); !got.Equal(decimal.NewFromInt(2550)) {
		t.Errorf("fallbackRate(USD) = %s, want 2550", got)
	}
	if got := fallbackRate(CurrencyCodeAED); !got.Equal(decimal.NewFromInt(700)) {
		t.Errorf("fallbackRate(AED) = %s, want 700", got)
	}
	if got := fallbackRate(CurrencyCodeSDG); !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("fallbackRate(SDG) = %s, want 1", got)
	}
}

func TestCurrencyCodeIsValid(t *testing.T) {
	for _, code := range []CurrencyCode{CurrencyCodeUSD, CurrencyCodeAED, CurrencyCodeSDG} {
		if !code.IsValid() {
			t.Errorf("%s should be valid", code)
		}
	}
	if CurrencyCode("EUR").IsValid() {
		t.Error("EUR should not be valid")
	}
}
