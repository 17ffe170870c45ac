package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComputeInvoiceStatus(t *testing.T) {
	cases := []struct {
		paid  string
		total string
		want  InvoiceStatus
	}{
		{"0", "1000", InvoiceStatusUnpaid},
		{"400", "1000", InvoiceStatusPartial},
		{"1000", "1000", InvoiceStatusPaid},
		{"1200", "1000", InvoiceStatusPaid},
		{"0", "0", InvoiceStatusUnpaid},
		{"0.01", "1000", InvoiceStatusPartial},
	}
	for _, c := range cases {
		got := computeInvoiceStatus(decimal.RequireFromString(c.paid), decimal.RequireFromString(c.total))
		if got != c.want {
			t.Errorf("computeInvoiceStatus(paid=%s total=%s) = %s, want %s", c.paid, c.total, got, c.want)
		}
	}
}

func TestDueWindow(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	from, to := dueWindow(now, 3)
	if !from.Equal(now) {
		t.Errorf("dueWindow from = %s, want %s", from, now)
	}
	wantTo := time.Date(2025, time.March, 13, 9, 0, 0, 0, time.UTC)
	if !to.Equal(wantTo) {
		t.Errorf("dueWindow to = %s, want %s", to, wantTo)
	}

	// An invoice due yesterday falls before the window and is not re-alerted.
	overdue := now.AddDate(0, 0, -1)
	if !overdue.Before(from) {
		t.Errorf("overdue date %s should precede window start %s", overdue, from)
	}
}

func TestZeroTotalInvoiceNeverPaid(t *testing.T) {
	// A fully returned sale leaves a zero-total invoice; it must stay unpaid
	// rather than flipping to paid with zero payments.
	got := computeInvoiceStatus(decimal.Zero, decimal.Zero)
	if got != InvoiceStatusUnpaid {
		t.Fatalf("computeInvoiceStatus(0, 0) = %s, want %s", got, InvoiceStatusUnpaid)
	}
}
