package models

import (
	"context"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Dashboard is the headline view: totals in SDG across the whole history.
type Dashboard struct {
	TotalSales       decimal.Decimal           `json:"total_sales"`
	TotalPurchases   decimal.Decimal           `json:"total_purchases"`
	TotalExpenses    decimal.Decimal           `json:"total_expenses"`
	TotalCommissions decimal.Decimal           `json:"total_commissions"`
	NetProfit        decimal.Decimal           `json:"net_profit"`
	UnpaidInvoices   int64                     `json:"unpaid_invoices"`
	CompanyBalances  []*CompanyBalanceResponse `json:"company_balances"`
}

// MonthlyFigures is the dashboard narrowed to one calendar month.
type MonthlyFigures struct {
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	Sales       decimal.Decimal `json:"sales"`
	Purchases   decimal.Decimal `json:"purchases"`
	Expenses    decimal.Decimal `json:"expenses"`
	Commissions decimal.Decimal `json:"commissions"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

// ShipmentProfit compares a batch's realized sales value against its landed
// cost in SDG.
type ShipmentProfit struct {
	ShipmentId   int             `json:"shipment_id"`
	BatchNumber  string          `json:"batch_number"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	SoldUnits    int             `json:"sold_units"`
	Revenue      decimal.Decimal `json:"revenue"`
	LandedCost   decimal.Decimal `json:"landed_cost"`
	Profit       decimal.Decimal `json:"profit"`
	RemainingQty int             `json:"remaining_qty"`
}

// totalPurchases is the landed cost of all shipments in SDG: the per-unit
// SDG cost times the quantity, plus the extra shipment cost.
func totalPurchases(db *gorm.DB, ctx context.Context, condition string, args ...interface{}) (decimal.Decimal, error) {
	var raw string
	query := db.WithContext(ctx).Model(&Shipment{}).
		Select("COALESCE(SUM(shipment_cost + cost_sdg * quantity), 0)")
	if condition != "" {
		query = query.Where(condition, args...)
	}
	if err := query.Scan(&raw).Error; err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// GetNetProfit is sales minus purchases, expenses and earned commissions,
// all in SDG.
func GetNetProfit(ctx context.Context) (decimal.Decimal, error) {
	db := config.GetDB()

	sales, err := sumDecimal(db, ctx, &Sale{}, "total", "")
	if err != nil {
		return decimal.Zero, err
	}
	purchases, err := totalPurchases(db, ctx, "")
	if err != nil {
		return decimal.Zero, err
	}
	expenses, err := sumDecimal(db, ctx, &Expense{}, "amount", "")
	if err != nil {
		return decimal.Zero, err
	}
	commissions, err := sumDecimal(db, ctx, &Commission{}, "amount", "")
	if err != nil {
		return decimal.Zero, err
	}

	return sales.Sub(purchases.Add(expenses).Add(commissions)), nil
}

func GetDashboard(ctx context.Context) (*Dashboard, error) {
	db := config.GetDB()

	sales, err := sumDecimal(db, ctx, &Sale{}, "total", "")
	if err != nil {
		return nil, err
	}
	purchases, err := totalPurchases(db, ctx, "")
	if err != nil {
		return nil, err
	}
	expenses, err := sumDecimal(db, ctx, &Expense{}, "amount", "")
	if err != nil {
		return nil, err
	}
	commissions, err := sumDecimal(db, ctx, &Commission{}, "amount", "")
	if err != nil {
		return nil, err
	}

	var unpaid int64
	err = db.WithContext(ctx).Model(&Invoice{}).
		Where("status <> ?", InvoiceStatusPaid).Count(&unpaid).Error
	if err != nil {
		return nil, err
	}

	balances, err := GetCompanyBalances(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		TotalSales:       sales,
		TotalPurchases:   purchases,
		TotalExpenses:    expenses,
		TotalCommissions: commissions,
		NetProfit:        sales.Sub(purchases.Add(expenses).Add(commissions)),
		UnpaidInvoices:   unpaid,
		CompanyBalances:  balances,
	}, nil
}

func GetMonthlyFigures(ctx context.Context, month time.Month, year int) (*MonthlyFigures, error) {
	start, end := utils.MonthRange(month, year)
	db := config.GetDB()

	sales, err := sumDecimal(db, ctx, &Sale{}, "total", "created_at >= ? AND created_at < ?", start, end)
	if err != nil {
		return nil, err
	}
	purchases, err := totalPurchases(db, ctx, "received_at >= ? AND received_at < ?", start, end)
	if err != nil {
		return nil, err
	}
	expenses, err := sumDecimal(db, ctx, &Expense{}, "amount", "date >= ? AND date < ?", start, end)
	if err != nil {
		return nil, err
	}
	commissions, err := sumDecimal(db, ctx, &Commission{}, "amount", "created_at >= ? AND created_at < ?", start, end)
	if err != nil {
		return nil, err
	}

	return &MonthlyFigures{
		Month:       int(month),
		Year:        year,
		Sales:       sales,
		Purchases:   purchases,
		Expenses:    expenses,
		Commissions: commissions,
		NetProfit:   sales.Sub(purchases.Add(expenses).Add(commissions)),
	}, nil
}

// GetShipmentProfitReport walks every batch and prices its sold units at the
// discounted sale prices recorded against it.
func GetShipmentProfitReport(ctx context.Context) ([]*ShipmentProfit, error) {
	db := config.GetDB()

	var shipments []Shipment
	err := db.WithContext(ctx).Preload("Product").Preload("Inventory").
		Order("received_at, id").Find(&shipments).Error
	if err != nil {
		return nil, err
	}

	var results []*ShipmentProfit
	for i := range shipments {
		s := &shipments[i]
		if s.Inventory == nil {
			continue
		}

		var items []SaleItem
		err := db.WithContext(ctx).Where("inventory_id = ?", s.Inventory.ID).Find(&items).Error
		if err != nil {
			return nil, err
		}

		revenue := decimal.Zero
		soldUnits := 0
		for j := range items {
			revenue = revenue.Add(items[j].Total())
			soldUnits += items[j].TotalUnits()
		}

		landed := s.ShipmentCost.Add(s.CostSdg.Mul(decimal.NewFromInt(int64(s.Quantity))))

		report := ShipmentProfit{
			ShipmentId:   s.ID,
			BatchNumber:  s.BatchNumber,
			Quantity:     s.Quantity,
			SoldUnits:    soldUnits,
			Revenue:      revenue,
			LandedCost:   landed,
			Profit:       revenue.Sub(landed),
			RemainingQty: s.Inventory.Quantity,
		}
		if s.Product != nil {
			report.ProductName = s.Product.Name
		}
		results = append(results, &report)
	}

	return results, nil
}

// GetSalesByEmployee sums sale totals per employee for one calendar month.
func GetSalesByEmployee(ctx context.Context, month time.Month, year int) (map[int]decimal.Decimal, error) {
	start, end := utils.MonthRange(month, year)

	db := config.GetDB()
	var rows []struct {
		EmployeeId int
		Total      string
	}
	err := db.WithContext(ctx).Model(&Sale{}).
		Select("employee_id, COALESCE(SUM(total), 0) AS total").
		Where("employee_id IS NOT NULL AND created_at >= ? AND created_at < ?", start, end).
		Group("employee_id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make(map[int]decimal.Decimal, len(rows))
	for _, row := range rows {
		total, err := decimal.NewFromString(row.Total)
		if err != nil {
			return nil, err
		}
		results[row.EmployeeId] = total
	}
	return results, nil
}
