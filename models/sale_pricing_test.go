package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSaleItemFreeUnitsFloors(t *testing.T) {
	cases := []struct {
		qty  int
		fg   string
		want int
	}{
		{100, "10", 10},
		{105, "10", 10}, // 10.5 floors to 10
		{7, "15", 1},    // 1.05 floors to 1
		{3, "10", 0},    // 0.3 floors to 0
		{100, "0", 0},
	}
	for _, c := range cases {
		item := SaleItem{
			Quantity:          c.qty,
			FreeGoodsDiscount: decimal.RequireFromString(c.fg),
		}
		if got := item.FreeUnits(); got != c.want {
			t.Errorf("FreeUnits(qty=%d fg=%s) = %d, want %d", c.qty, c.fg, got, c.want)
		}
		if got := item.TotalUnits(); got != c.qty+c.want {
			t.Errorf("TotalUnits(qty=%d fg=%s) = %d, want %d", c.qty, c.fg, got, c.qty+c.want)
		}
	}
}

func TestSaleItemDiscountedUnitPrice(t *testing.T) {
	item := SaleItem{
		Quantity:      10,
		Price:         decimal.NewFromInt(1100),
		PriceDiscount: decimal.NewFromInt(10),
	}
	// 1100 / (1 + 10/100) = 1000
	if got := item.DiscountedUnitPrice(); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("DiscountedUnitPrice = %s, want 1000", got)
	}
	if got := item.Total(); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("Total = %s, want 10000", got)
	}
}

func TestSaleItemNoDiscountKeepsPrice(t *testing.T) {
	item := SaleItem{
		Quantity: 4,
		Price:    decimal.NewFromInt(250),
	}
	if got := item.DiscountedUnitPrice(); !got.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("DiscountedUnitPrice = %s, want 250", got)
	}
	if got := item.Total(); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("Total = %s, want 1000", got)
	}
}

func TestSaleItemFreeUnitsAreNotCharged(t *testing.T) {
	// 100 paid units with 10% free goods draws 110 units from stock but bills 100.
	item := SaleItem{
		Quantity:          100,
		Price:             decimal.NewFromInt(50),
		FreeGoodsDiscount: decimal.NewFromInt(10),
	}
	if got := item.TotalUnits(); got != 110 {
		t.Fatalf("TotalUnits = %d, want 110", got)
	}
	if got := item.Total(); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("Total = %s, want 5000", got)
	}
}
