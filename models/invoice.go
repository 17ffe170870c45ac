package models

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Invoice mirrors the sale total at creation time. Status is derived from
// the payments recorded against it, never set directly.
type Invoice struct {
	ID        int              `gorm:"primary_key" json:"id"`
	SaleId    int              `gorm:"uniqueIndex;not null" json:"sale_id"`
	Number    string           `gorm:"size:6;uniqueIndex;not null" json:"number"`
	Total     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total"`
	DueDate   time.Time        `gorm:"index;not null" json:"due_date"`
	Status    InvoiceStatus    `gorm:"size:20;index;default:unpaid" json:"status"`
	Payments  []InvoicePayment `json:"payments"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoicePayment struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaidAt    time.Time       `gorm:"index;not null" json:"paid_at"`
	Notes     string          `gorm:"size:255" json:"notes"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoicePayment struct {
	InvoiceId int             `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	PaidAt    time.Time       `json:"paid_at"`
	Notes     string          `json:"notes" validate:"max=255"`
}

// computeInvoiceStatus derives the status from the paid and total amounts.
// A zero-total invoice can never reach paid.
func computeInvoiceStatus(paid decimal.Decimal, total decimal.Decimal) InvoiceStatus {
	if total.IsPositive() && paid.GreaterThanOrEqual(total) {
		return InvoiceStatusPaid
	}
	if paid.IsPositive() {
		return InvoiceStatusPartial
	}
	return InvoiceStatusUnpaid
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// generateInvoiceNumber draws a random 6-digit number. The unique index on
// the column is the source of truth; callers retry on collision.
func generateInvoiceNumber() string {
	return fmt.Sprintf("%06d", rand.Intn(900000)+100000)
}

func createInvoiceForSale(tx *gorm.DB, ctx context.Context, sale *Sale, dueDate time.Time) (*Invoice, error) {
	for {
		invoice := Invoice{
			SaleId:  sale.ID,
			Number:  generateInvoiceNumber(),
			Total:   sale.Total,
			DueDate: dueDate,
			Status:  InvoiceStatusUnpaid,
		}
		err := tx.WithContext(ctx).Create(&invoice).Error
		if err == nil {
			return &invoice, nil
		}
		if !isDuplicateKeyErr(err) {
			return nil, err
		}
	}
}

func invoicePaidAmount(tx *gorm.DB, ctx context.Context, invoiceId int) (decimal.Decimal, error) {
	return sumDecimal(tx, ctx, &InvoicePayment{}, "amount", "invoice_id = ?", invoiceId)
}

// invoiceOwedAmount is the live sale total. Invoice.Total is a snapshot taken
// at creation; returns lower the sale total afterwards, and the status and
// payment guards follow the sale, not the snapshot.
func invoiceOwedAmount(tx *gorm.DB, ctx context.Context, invoice *Invoice) (decimal.Decimal, error) {
	return sumDecimal(tx, ctx, &Sale{}, "total", "id = ?", invoice.SaleId)
}

func updateInvoiceStatus(tx *gorm.DB, ctx context.Context, invoice *Invoice) error {
	paid, err := invoicePaidAmount(tx, ctx, invoice.ID)
	if err != nil {
		return err
	}
	owed, err := invoiceOwedAmount(tx, ctx, invoice)
	if err != nil {
		return err
	}
	status := computeInvoiceStatus(paid, owed)
	if status == invoice.Status {
		return nil
	}
	if err := tx.WithContext(ctx).Model(invoice).Update("Status", status).Error; err != nil {
		return err
	}
	invoice.Status = status
	return nil
}

// refreshInvoiceStatusForSale re-derives the status of the sale's invoice.
// Sales without an invoice are left alone.
func refreshInvoiceStatusForSale(tx *gorm.DB, ctx context.Context, saleId int) error {
	var invoice Invoice
	err := tx.WithContext(ctx).Where("sale_id = ?", saleId).First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	return updateInvoiceStatus(tx, ctx, &invoice)
}

func fetchInvoiceForUpdate(tx *gorm.DB, ctx context.Context, id int) (*Invoice, error) {
	var invoice Invoice
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &invoice, nil
}

// CreateInvoicePayment records a payment under an invoice row lock. The
// amount must be positive and no greater than the remaining balance, so the
// paid sum can never exceed the invoice total.
func CreateInvoicePayment(ctx context.Context, input *NewInvoicePayment) (*InvoicePayment, error) {

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", utils.ErrorValidation)
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	db := config.GetDB()
	tx := db.Begin()

	invoice, err := fetchInvoiceForUpdate(tx, ctx, input.InvoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	paid, err := invoicePaidAmount(tx, ctx, invoice.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	owed, err := invoiceOwedAmount(tx, ctx, invoice)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	remaining := owed.Sub(paid)
	if input.Amount.GreaterThan(remaining) {
		tx.Rollback()
		return nil, fmt.Errorf("%w: invoice %s has %s remaining, cannot pay %s",
			utils.ErrorInsufficientFunds, invoice.Number, remaining.String(), input.Amount.String())
	}

	payment := InvoicePayment{
		InvoiceId: invoice.ID,
		Amount:    input.Amount,
		PaidAt:    paidAt,
		Notes:     input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := updateInvoiceStatus(tx, ctx, invoice); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, paidAt, payment.ID, NotificationReferenceTypeInvoicePayment, payment, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

// DeleteInvoicePayment removes a payment and re-derives the invoice status.
func DeleteInvoicePayment(ctx context.Context, id int) (*InvoicePayment, error) {

	payment, err := utils.FetchModel[InvoicePayment](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	invoice, err := fetchInvoiceForUpdate(tx, ctx, payment.InvoiceId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Delete(payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := updateInvoiceStatus(tx, ctx, invoice); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), payment.ID, NotificationReferenceTypeInvoicePayment, nil, payment, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return payment, nil
}

// MarkInvoicePaid settles the remaining balance with a single payment. An
// already paid invoice is returned unchanged.
func MarkInvoicePaid(ctx context.Context, id int) (*Invoice, error) {

	db := config.GetDB()
	tx := db.Begin()

	invoice, err := fetchInvoiceForUpdate(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if invoice.Status == InvoiceStatusPaid {
		tx.Rollback()
		return invoice, nil
	}

	paid, err := invoicePaidAmount(tx, ctx, invoice.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	owed, err := invoiceOwedAmount(tx, ctx, invoice)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	remaining := owed.Sub(paid)
	if !remaining.IsPositive() {
		tx.Rollback()
		return nil, fmt.Errorf("%w: invoice %s has no remaining balance to settle", utils.ErrorValidation, invoice.Number)
	}

	paidAt := time.Now().UTC()
	payment := InvoicePayment{
		InvoiceId: invoice.ID,
		Amount:    remaining,
		PaidAt:    paidAt,
		Notes:     "settled in full",
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := updateInvoiceStatus(tx, ctx, invoice); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, paidAt, invoice.ID, NotificationReferenceTypeInvoice, invoice, nil, NotificationActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return invoice, nil
}

// MarkInvoiceUnpaid deletes every payment on the invoice.
func MarkInvoiceUnpaid(ctx context.Context, id int) (*Invoice, error) {

	db := config.GetDB()
	tx := db.Begin()

	invoice, err := fetchInvoiceForUpdate(tx, ctx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Where("invoice_id = ?", invoice.ID).Delete(&InvoicePayment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := updateInvoiceStatus(tx, ctx, invoice); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), invoice.ID, NotificationReferenceTypeInvoice, invoice, nil, NotificationActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return invoice, nil
}

// GetInvoiceRemainingAmount is the live sale total minus the recorded
// payments.
func GetInvoiceRemainingAmount(ctx context.Context, id int) (decimal.Decimal, error) {
	invoice, err := utils.FetchModel[Invoice](ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	db := config.GetDB()
	paid, err := invoicePaidAmount(db, ctx, invoice.ID)
	if err != nil {
		return decimal.Zero, err
	}
	owed, err := invoiceOwedAmount(db, ctx, invoice)
	if err != nil {
		return decimal.Zero, err
	}
	return owed.Sub(paid), nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, id, "Payments")
}

func GetInvoices(ctx context.Context) ([]*Invoice, error) {
	db := config.GetDB()
	var results []*Invoice
	err := db.WithContext(ctx).Preload("Payments").Order("created_at desc, id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetDueInvoices lists not-yet-paid invoices whose due date falls within the
// next withinDays days.
// dueWindow is the [from, to] range a due date must fall in to trigger an
// alert. Already-overdue invoices are excluded; they were alerted when their
// own window passed.
func dueWindow(now time.Time, withinDays int) (time.Time, time.Time) {
	return now, now.AddDate(0, 0, withinDays)
}

func GetDueInvoices(ctx context.Context, withinDays int) ([]*Invoice, error) {
	db := config.GetDB()
	now, cutoff := dueWindow(time.Now().UTC(), withinDays)
	var results []*Invoice
	err := db.WithContext(ctx).Preload("Payments").
		Where("status <> ? AND due_date >= ? AND due_date <= ?", InvoiceStatusPaid, now, cutoff).
		Order("due_date").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
