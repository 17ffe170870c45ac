package models

import (
	"bitbucket.org/saheltrading/ledger_backend/config"
)

// MigrateTable creates or updates every table and seeds the three supported
// currencies. Safe to run repeatedly.
func MigrateTable() error {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Currency{},
		&Exchange{},
		&Partner{},
		&PartnerTransaction{},
		&Product{},
		&Supplier{},
		&SupplierPayment{},
		&Shipment{},
		&Inventory{},
		&LostProduct{},
		&Area{},
		&Client{},
		&Employee{},
		&Sale{},
		&SaleItem{},
		&ReturnedProduct{},
		&Invoice{},
		&InvoicePayment{},
		&Commission{},
		&CommissionPayment{},
		&CommissionPaymentAllocation{},
		&Expense{},
		&FinancialLog{},
		&NotificationRecord{},
	)
	if err != nil {
		return err
	}

	seeds := []Currency{
		{Code: CurrencyCodeUSD, Name: "US Dollar"},
		{Code: CurrencyCodeAED, Name: "UAE Dirham"},
		{Code: CurrencyCodeSDG, Name: "Sudanese Pound"},
	}
	for _, seed := range seeds {
		var currency Currency
		err := db.Where(Currency{Code: seed.Code}).
			Attrs(Currency{Name: seed.Name}).
			FirstOrCreate(&currency).Error
		if err != nil {
			return err
		}
	}

	return nil
}
