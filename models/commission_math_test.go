package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDistributeCommissionPaymentFifo(t *testing.T) {
	commissions := []Commission{
		{Amount: d("100"), PaidAmount: d("0")},
		{Amount: d("50"), PaidAmount: d("0")},
		{Amount: d("30"), PaidAmount: d("0")},
	}

	applied := distributeCommissionPayment(d("120"), commissions)

	want := []string{"100", "20", "0"}
	for i := range want {
		if !applied[i].Equal(d(want[i])) {
			t.Errorf("applied[%d] = %s, want %s", i, applied[i], want[i])
		}
	}
}

func TestDistributeCommissionPaymentSkipsPaidPortion(t *testing.T) {
	commissions := []Commission{
		{Amount: d("100"), PaidAmount: d("80")}, // 20 unpaid
		{Amount: d("60"), PaidAmount: d("0")},
	}

	applied := distributeCommissionPayment(d("50"), commissions)

	if !applied[0].Equal(d("20")) {
		t.Errorf("applied[0] = %s, want 20", applied[0])
	}
	if !applied[1].Equal(d("30")) {
		t.Errorf("applied[1] = %s, want 30", applied[1])
	}
}

func TestDistributeCommissionPaymentExactFill(t *testing.T) {
	commissions := []Commission{
		{Amount: d("40"), PaidAmount: d("0")},
		{Amount: d("60"), PaidAmount: d("0")},
	}

	applied := distributeCommissionPayment(d("100"), commissions)

	if !applied[0].Equal(d("40")) || !applied[1].Equal(d("60")) {
		t.Fatalf("applied = [%s %s], want [40 60]", applied[0], applied[1])
	}
}

func TestRescaleCommissionFreshWhenUnpaid(t *testing.T) {
	// Nothing paid yet: recompute from the sale total at the new percentage.
	got := rescaleCommissionAmount(d("100"), d("0"), d("2000"), d("10"))
	if !got.Equal(d("200")) {
		t.Fatalf("rescale = %s, want 200", got)
	}
}

func TestRescaleCommissionPartiallyPaid(t *testing.T) {
	// Amount 100 on a 2000 sale implies 5%. Raising to 10% doubles the
	// unpaid remainder; the 40 already paid stays untouched.
	got := rescaleCommissionAmount(d("100"), d("40"), d("2000"), d("10"))
	if !got.Equal(d("160")) {
		t.Fatalf("rescale = %s, want 160", got)
	}
}

func TestRescaleCommissionFullyPaidKeepsPaid(t *testing.T) {
	got := rescaleCommissionAmount(d("100"), d("100"), d("2000"), d("10"))
	if !got.Equal(d("100")) {
		t.Fatalf("rescale = %s, want 100", got)
	}
}

func TestRescaleCommissionZeroSaleTotal(t *testing.T) {
	// A zero-total sale gives no implied percentage; the unpaid remainder
	// collapses and only the paid amount survives.
	got := rescaleCommissionAmount(d("50"), d("10"), d("0"), d("10"))
	if !got.Equal(d("10")) {
		t.Fatalf("rescale = %s, want 10", got)
	}
}

func TestCommissionUnpaidAmountNeverNegative(t *testing.T) {
	c := Commission{Amount: d("50"), PaidAmount: d("80")}
	if got := c.UnpaidAmount(); !got.IsZero() {
		t.Fatalf("UnpaidAmount = %s, want 0", got)
	}
}
