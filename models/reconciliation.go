package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
)

// ReconciliationCheck is one compared figure. Stored and recomputed values
// are kept as strings so the report serializes cleanly regardless of type.
type ReconciliationCheck struct {
	Kind        string `json:"kind"`
	ReferenceId int    `json:"reference_id"`
	Stored      string `json:"stored"`
	Recomputed  string `json:"recomputed"`
	Detail      string `json:"detail"`
}

type ReconciliationReport struct {
	RanAt         time.Time             `json:"ran_at"`
	CheckedCount  int                   `json:"checked_count"`
	Discrepancies []ReconciliationCheck `json:"discrepancies"`
}

func (r *ReconciliationReport) Clean() bool {
	return len(r.Discrepancies) == 0
}

// RunReconciliation replays the event history and compares it against every
// stored figure: batch stock levels, sale totals and invoice statuses. It
// only reads; fixing a discrepancy is a manual decision.
func RunReconciliation(ctx context.Context) (*ReconciliationReport, error) {

	report := ReconciliationReport{RanAt: time.Now().UTC()}
	db := config.GetDB()

	// Inventory: shipment quantity minus consumption plus returns minus losses.
	var inventories []Inventory
	if err := db.WithContext(ctx).Preload("Shipment").Find(&inventories).Error; err != nil {
		return nil, err
	}
	for i := range inventories {
		inv := &inventories[i]
		report.CheckedCount++

		var items []SaleItem
		if err := db.WithContext(ctx).Where("inventory_id = ?", inv.ID).Find(&items).Error; err != nil {
			return nil, err
		}
		consumed := 0
		itemIds := make([]int, 0, len(items))
		for j := range items {
			consumed += items[j].TotalUnits()
			itemIds = append(itemIds, items[j].ID)
		}

		returned := 0
		if len(itemIds) > 0 {
			var total int64
			err := db.WithContext(ctx).Model(&ReturnedProduct{}).
				Where("sale_item_id IN ?", itemIds).
				Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error
			if err != nil {
				return nil, err
			}
			returned = int(total)
		}

		var lostTotal int64
		err := db.WithContext(ctx).Model(&LostProduct{}).
			Where("inventory_id = ?", inv.ID).
			Select("COALESCE(SUM(quantity), 0)").Scan(&lostTotal).Error
		if err != nil {
			return nil, err
		}

		expected := -consumed + returned - int(lostTotal)
		if inv.Shipment != nil {
			expected += inv.Shipment.Quantity
		}
		if expected != inv.Quantity {
			batch := ""
			if inv.Shipment != nil {
				batch = inv.Shipment.BatchNumber
			}
			report.Discrepancies = append(report.Discrepancies, ReconciliationCheck{
				Kind:        "inventory_quantity",
				ReferenceId: inv.ID,
				Stored:      fmt.Sprintf("%d", inv.Quantity),
				Recomputed:  fmt.Sprintf("%d", expected),
				Detail:      fmt.Sprintf("batch %s", batch),
			})
		}
	}

	// Sale totals against their items and returns.
	var sales []Sale
	if err := db.WithContext(ctx).Find(&sales).Error; err != nil {
		return nil, err
	}
	for i := range sales {
		sale := &sales[i]
		report.CheckedCount++

		recomputed, err := calculateSaleTotal(db, ctx, sale.ID)
		if err != nil {
			return nil, err
		}
		if !recomputed.Equal(sale.Total) {
			report.Discrepancies = append(report.Discrepancies, ReconciliationCheck{
				Kind:        "sale_total",
				ReferenceId: sale.ID,
				Stored:      sale.Total.String(),
				Recomputed:  recomputed.String(),
			})
		}
	}

	// Invoice statuses against their payments.
	var invoices []Invoice
	if err := db.WithContext(ctx).Find(&invoices).Error; err != nil {
		return nil, err
	}
	for i := range invoices {
		invoice := &invoices[i]
		report.CheckedCount++

		paid, err := invoicePaidAmount(db, ctx, invoice.ID)
		if err != nil {
			return nil, err
		}
		owed, err := invoiceOwedAmount(db, ctx, invoice)
		if err != nil {
			return nil, err
		}
		expected := computeInvoiceStatus(paid, owed)
		if expected != invoice.Status {
			report.Discrepancies = append(report.Discrepancies, ReconciliationCheck{
				Kind:        "invoice_status",
				ReferenceId: invoice.ID,
				Stored:      string(invoice.Status),
				Recomputed:  string(expected),
				Detail:      fmt.Sprintf("invoice %s, paid %s of %s owed", invoice.Number, paid.String(), owed.String()),
			})
		}
	}

	return &report, nil
}
