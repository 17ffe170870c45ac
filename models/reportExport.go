package models

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/xuri/excelize/v2"
)

// ExportDashboardReport renders the dashboard, the company balances and the
// per-batch profit figures into a spreadsheet and uploads it. Returns the
// object name of the uploaded file.
func ExportDashboardReport(ctx context.Context) (string, error) {

	dashboard, err := GetDashboard(ctx)
	if err != nil {
		return "", err
	}
	profits, err := GetShipmentProfitReport(ctx)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	summaryRows := [][]interface{}{
		{"Generated at", time.Now().UTC().Format(time.RFC3339)},
		{},
		{"Total sales (SDG)", dashboard.TotalSales.String()},
		{"Total purchases (SDG)", dashboard.TotalPurchases.String()},
		{"Total expenses (SDG)", dashboard.TotalExpenses.String()},
		{"Total commissions (SDG)", dashboard.TotalCommissions.String()},
		{"Net profit (SDG)", dashboard.NetProfit.String()},
		{"Unpaid invoices", dashboard.UnpaidInvoices},
	}
	for i, row := range summaryRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return "", err
		}
	}

	balanceSheet := "Balances"
	if _, err := f.NewSheet(balanceSheet); err != nil {
		return "", err
	}
	header := []interface{}{"Currency", "Balance", "SDG equivalent"}
	if err := f.SetSheetRow(balanceSheet, "A1", &header); err != nil {
		return "", err
	}
	for i, balance := range dashboard.CompanyBalances {
		row := []interface{}{string(balance.CurrencyCode), balance.Balance.String(), balance.SdgEquivalent.String()}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(balanceSheet, cell, &row); err != nil {
			return "", err
		}
	}

	profitSheet := "Batch profit"
	if _, err := f.NewSheet(profitSheet); err != nil {
		return "", err
	}
	profitHeader := []interface{}{"Batch", "Product", "Received qty", "Sold units", "Remaining", "Revenue", "Landed cost", "Profit"}
	if err := f.SetSheetRow(profitSheet, "A1", &profitHeader); err != nil {
		return "", err
	}
	for i, p := range profits {
		row := []interface{}{
			p.BatchNumber, p.ProductName, p.Quantity, p.SoldUnits, p.RemainingQty,
			p.Revenue.String(), p.LandedCost.String(), p.Profit.String(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(profitSheet, cell, &row); err != nil {
			return "", err
		}
	}

	var buffer bytes.Buffer
	if err := f.Write(&buffer); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("reports/dashboard-%s.xlsx", time.Now().UTC().Format("2006-01-02-150405"))
	if err := utils.UploadFileToGCS(ctx, objectName, &buffer); err != nil {
		return "", err
	}

	return objectName, nil
}
