package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Address   string    `gorm:"size:255" json:"address"`
	Notes     string    `gorm:"size:500" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SupplierPayment settles part of what is owed for shipments. Payments are
// denominated in USD, which is why they appear only in the USD company
// balance.
type SupplierPayment struct {
	ID         int             `gorm:"primary_key" json:"id"`
	SupplierId int             `gorm:"index;not null" json:"supplier_id"`
	Supplier   *Supplier       `json:"supplier"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaidAt     time.Time       `gorm:"index;not null" json:"paid_at"`
	Notes      string          `gorm:"size:255" json:"notes"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSupplier struct {
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"max=30"`
	Address string `json:"address" validate:"max=255"`
	Notes   string `json:"notes" validate:"max=500"`
}

type NewSupplierPayment struct {
	SupplierId int             `json:"supplier_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paid_at" validate:"required"`
	Notes      string          `json:"notes"`
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
		return nil, err
	}
	db := config.GetDB()
	supplier := Supplier{
		Name:    input.Name,
		Phone:   input.Phone,
		Address: input.Address,
		Notes:   input.Notes,
	}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	return utils.FetchModel[Supplier](ctx, id)
}

func GetSuppliers(ctx context.Context) ([]*Supplier, error) {
	return utils.FetchAllModels[Supplier](ctx)
}

// SupplierOwed is the total USD cost of all shipments received from the
// supplier (unit cost x quantity).
func SupplierOwed(ctx context.Context, supplierId int) (decimal.Decimal, error) {
	db := config.GetDB()
	return sumDecimal(db, ctx, &Shipment{}, "cost_usd * quantity", "supplier_id = ?", supplierId)
}

func SupplierPaid(ctx context.Context, supplierId int) (decimal.Decimal, error) {
	db := config.GetDB()
	return sumDecimal(db, ctx, &SupplierPayment{}, "amount", "supplier_id = ?", supplierId)
}

// SupplierBalance is what the company still owes the supplier. Overpayment is
// floored at zero by policy: excess payments are treated as settled history,
// not as supplier credit.
func SupplierBalance(ctx context.Context, supplierId int) (decimal.Decimal, error) {
	owed, err := SupplierOwed(ctx, supplierId)
	if err != nil {
		return decimal.Zero, err
	}
	paid, err := SupplierPaid(ctx, supplierId)
	if err != nil {
		return decimal.Zero, err
	}
	balance := owed.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero, nil
	}
	return balance, nil
}

func CreateSupplierPayment(ctx context.Context, input *NewSupplierPayment) (*SupplierPayment, error) {

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", utils.ErrorValidation)
	}

	supplier, err := utils.FetchModel[Supplier](ctx, input.SupplierId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	payment := SupplierPayment{
		SupplierId: input.SupplierId,
		Amount:     input.Amount,
		PaidAt:     input.PaidAt,
		Notes:      input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := FinancialLog{
		OperationType: FinancialLogOperationSupplierPayment,
		ReferenceId:   payment.ID,
		Description:   fmt.Sprintf("Paid %s USD to supplier %s", payment.Amount, supplier.Name),
		Amount:        payment.Amount.Neg(),
		CurrencyCode:  CurrencyCodeUSD,
		SdgEquivalent: ConvertToSDG(ctx, payment.Amount, CurrencyCodeUSD).Neg(),
		Notes:         payment.Notes,
	}
	if err := createFinancialLog(tx, ctx, &entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, payment.PaidAt, payment.ID, NotificationReferenceTypeSupplierPayment, payment, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

func DeleteSupplierPayment(ctx context.Context, id int) (*SupplierPayment, error) {

	payment, err := utils.FetchModel[SupplierPayment](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Delete(payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := FinancialLog{
		OperationType: FinancialLogOperationBalanceAdjustment,
		ReferenceId:   payment.ID,
		Description:   fmt.Sprintf("Reverted supplier payment of %s USD", payment.Amount),
		Amount:        payment.Amount,
		CurrencyCode:  CurrencyCodeUSD,
		SdgEquivalent: ConvertToSDG(ctx, payment.Amount, CurrencyCodeUSD),
		Notes:         payment.Notes,
	}
	if err := createFinancialLog(tx, ctx, &entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), payment.ID, NotificationReferenceTypeSupplierPayment, nil, payment, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return payment, nil
}

func GetSupplierPayments(ctx context.Context, supplierId int) ([]*SupplierPayment, error) {
	db := config.GetDB()
	var results []*SupplierPayment
	dbCtx := db.WithContext(ctx)
	if supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", supplierId)
	}
	if err := dbCtx.Order("paid_at desc, id desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
