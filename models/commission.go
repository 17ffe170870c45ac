package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Commission is the amount an employee earns on one sale. PaidAmount only
// moves through commission payments; rescaling after a percentage change
// never reduces what was already paid.
type Commission struct {
	ID         int             `gorm:"primary_key" json:"id"`
	EmployeeId int             `gorm:"uniqueIndex:idx_commission_employee_sale;not null" json:"employee_id"`
	SaleId     int             `gorm:"uniqueIndex:idx_commission_employee_sale;not null" json:"sale_id"`
	Sale       *Sale           `json:"sale"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaidAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	CreatedAt  time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Commission) UnpaidAmount() decimal.Decimal {
	unpaid := c.Amount.Sub(c.PaidAmount)
	if unpaid.IsNegative() {
		return decimal.Zero
	}
	return unpaid
}

// CommissionPayment pays an employee across their open commissions, oldest
// sale first. Allocation rows record how much landed on each commission.
type CommissionPayment struct {
	ID          int                           `gorm:"primary_key" json:"id"`
	EmployeeId  int                           `gorm:"index;not null" json:"employee_id"`
	Employee    *Employee                     `json:"employee"`
	Amount      decimal.Decimal               `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaidAt      time.Time                     `gorm:"index;not null" json:"paid_at"`
	Notes       string                        `gorm:"size:255" json:"notes"`
	Allocations []CommissionPaymentAllocation `gorm:"foreignKey:CommissionPaymentId" json:"allocations"`
	CreatedAt   time.Time                     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                     `gorm:"autoUpdateTime" json:"updated_at"`
}

// CommissionPaymentAllocation is the exact portion of one payment applied to
// one commission. Deleting the payment reverses these portions, so the
// per-commission split stays correct even when later payments touched the
// same commissions.
type CommissionPaymentAllocation struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	CommissionPaymentId int             `gorm:"index;not null" json:"commission_payment_id"`
	CommissionId        int             `gorm:"index;not null" json:"commission_id"`
	Commission          *Commission     `json:"commission"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewCommissionPayment struct {
	EmployeeId int             `json:"employee_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	PaidAt     time.Time       `json:"paid_at"`
	Notes      string          `json:"notes" validate:"max=255"`
}

// upsertCommission creates or refreshes the commission for a sale at the
// employee's current percentage, preserving paid amounts on refresh.
func upsertCommission(tx *gorm.DB, ctx context.Context, sale *Sale, employee *Employee) error {

	target := sale.Total.Mul(employee.CommissionPercentage).Div(decimal.NewFromInt(100))

	var commission Commission
	err := tx.WithContext(ctx).
		Where("employee_id = ? AND sale_id = ?", employee.ID, sale.ID).
		First(&commission).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		commission = Commission{
			EmployeeId: employee.ID,
			SaleId:     sale.ID,
			Amount:     target,
		}
		return tx.WithContext(ctx).Create(&commission).Error
	}

	amount := target
	if amount.LessThan(commission.PaidAmount) {
		amount = commission.PaidAmount
	}
	return tx.WithContext(ctx).Model(&commission).Update("Amount", amount).Error
}

// rescaleCommissionAmount recomputes a commission after the employee's
// percentage changes. A fully unpaid commission is recomputed from the sale
// total; a partially paid one keeps its paid amount and rescales only the
// unpaid remainder by the ratio of the new percentage to the percentage the
// current amount implies.
func rescaleCommissionAmount(amount, paid, saleTotal, newPercentage decimal.Decimal) decimal.Decimal {

	fresh := saleTotal.Mul(newPercentage).Div(decimal.NewFromInt(100))

	if paid.IsZero() {
		return fresh
	}

	unpaid := amount.Sub(paid)
	if !unpaid.IsPositive() {
		return paid
	}

	var ratio decimal.Decimal
	if saleTotal.IsPositive() && amount.IsPositive() {
		impliedOld := amount.Div(saleTotal).Mul(decimal.NewFromInt(100))
		if impliedOld.IsPositive() {
			ratio = newPercentage.Div(impliedOld)
		}
	}

	return paid.Add(unpaid.Mul(ratio))
}

// recalcEmployeeCommissions rescales every commission of the employee to the
// new percentage.
func recalcEmployeeCommissions(tx *gorm.DB, ctx context.Context, employeeId int, newPercentage decimal.Decimal) error {

	var commissions []Commission
	err := tx.WithContext(ctx).Preload("Sale").
		Where("employee_id = ?", employeeId).Find(&commissions).Error
	if err != nil {
		return err
	}

	for i := range commissions {
		c := &commissions[i]
		saleTotal := decimal.Zero
		if c.Sale != nil {
			saleTotal = c.Sale.Total
		}
		amount := rescaleCommissionAmount(c.Amount, c.PaidAmount, saleTotal, newPercentage)
		if amount.Equal(c.Amount) {
			continue
		}
		if err := tx.WithContext(ctx).Model(c).Update("Amount", amount).Error; err != nil {
			return err
		}
	}
	return nil
}

// distributeCommissionPayment splits an amount across commissions in the
// given order, filling each one's unpaid balance before moving on. Returns
// the portion applied to each commission, aligned with the input slice.
func distributeCommissionPayment(amount decimal.Decimal, commissions []Commission) []decimal.Decimal {

	applied := make([]decimal.Decimal, len(commissions))
	remaining := amount

	for i := range commissions {
		if !remaining.IsPositive() {
			applied[i] = decimal.Zero
			continue
		}
		unpaid := commissions[i].UnpaidAmount()
		portion := unpaid
		if remaining.LessThan(unpaid) {
			portion = remaining
		}
		applied[i] = portion
		remaining = remaining.Sub(portion)
	}

	return applied
}

// CreateCommissionPayment pays an employee, consuming open commissions
// oldest sale first. The amount must not exceed the total unpaid commission.
func CreateCommissionPayment(ctx context.Context, input *NewCommissionPayment) (*CommissionPayment, error) {

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

	// The guard below compares against the summed unpaid commission, so the
	// employee row is locked to serialize concurrent payments.
	employee, err := fetchEmployeeForUpdate(tx, ctx, input.EmployeeId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var commissions []Commission
	err = tx.WithContext(ctx).
		Joins("JOIN sales ON sales.id = commissions.sale_id").
		Where("commissions.employee_id = ?", employee.ID).
		Order("sales.created_at, sales.id").
		Find(&commissions).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	totalUnpaid := decimal.Zero
	for i := range commissions {
		totalUnpaid = totalUnpaid.Add(commissions[i].UnpaidAmount())
	}
	if input.Amount.GreaterThan(totalUnpaid) {
		tx.Rollback()
		return nil, fmt.Errorf("%w: employee %s has %s unpaid commission, cannot pay %s",
			utils.ErrorInsufficientFunds, employee.Name, totalUnpaid.String(), input.Amount.String())
	}

	payment := CommissionPayment{
		EmployeeId: employee.ID,
		Amount:     input.Amount,
		PaidAt:     paidAt,
		Notes:      input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	applied := distributeCommissionPayment(input.Amount, commissions)
	for i := range commissions {
		if !applied[i].IsPositive() {
			continue
		}
		c := &commissions[i]
		newPaid := c.PaidAmount.Add(applied[i])
		if err := tx.WithContext(ctx).Model(c).Update("PaidAmount", newPaid).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		c.PaidAmount = newPaid
		allocation := CommissionPaymentAllocation{
			CommissionPaymentId: payment.ID,
			CommissionId:        c.ID,
			Amount:              applied[i],
		}
		if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		payment.Allocations = append(payment.Allocations, allocation)
	}

	logEntry := FinancialLog{
		OperationType: FinancialLogOperationCommissionPayout,
		ReferenceId:   payment.ID,
		Description:   fmt.Sprintf("commission payout to %s", employee.Name),
		Amount:        input.Amount.Neg(),
		CurrencyCode:  CurrencyCodeSDG,
		SdgEquivalent: input.Amount.Neg(),
		Timestamp:     paidAt,
		Notes:         input.Notes,
	}
	if err := createFinancialLog(tx, ctx, &logEntry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, paidAt, payment.ID, NotificationReferenceTypeCommissionPayment, payment, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &payment, nil
}

// DeleteCommissionPayment reverses a payout: each allocation's exact portion
// is subtracted from its commission's paid amount.
func DeleteCommissionPayment(ctx context.Context, id int) (*CommissionPayment, error) {

	payment, err := utils.FetchModel[CommissionPayment](ctx, id, "Allocations")
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if _, err := fetchEmployeeForUpdate(tx, ctx, payment.EmployeeId); err != nil {
		tx.Rollback()
		return nil, err
	}

	for i := range payment.Allocations {
		allocation := &payment.Allocations[i]
		var commission Commission
		if err := tx.WithContext(ctx).First(&commission, allocation.CommissionId).Error; err != nil {
			tx.Rollback()
			return nil, utils.ErrorRecordNotFound
		}
		newPaid := commission.PaidAmount.Sub(allocation.Amount)
		if newPaid.IsNegative() {
			newPaid = decimal.Zero
		}
		if err := tx.WithContext(ctx).Model(&commission).Update("PaidAmount", newPaid).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Where("commission_payment_id = ?", payment.ID).
		Delete(&CommissionPaymentAllocation{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	logEntry := FinancialLog{
		OperationType: FinancialLogOperationBalanceAdjustment,
		ReferenceId:   payment.ID,
		Description:   fmt.Sprintf("reversal of commission payout %d", payment.ID),
		Amount:        payment.Amount,
		CurrencyCode:  CurrencyCodeSDG,
		SdgEquivalent: payment.Amount,
		Timestamp:     time.Now().UTC(),
	}
	if err := createFinancialLog(tx, ctx, &logEntry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), payment.ID, NotificationReferenceTypeCommissionPayment, nil, payment, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return payment, nil
}

// GetUnpaidCommission sums the unpaid commission the employee earned on
// sales made in one calendar month.
func GetUnpaidCommission(ctx context.Context, employeeId int, month time.Month, year int) (decimal.Decimal, error) {

	start, end := utils.MonthRange(month, year)

	db := config.GetDB()
	var commissions []Commission
	err := db.WithContext(ctx).
		Joins("JOIN sales ON sales.id = commissions.sale_id").
		Where("commissions.employee_id = ? AND sales.created_at >= ? AND sales.created_at < ?", employeeId, start, end).
		Find(&commissions).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range commissions {
		total = total.Add(commissions[i].UnpaidAmount())
	}
	return total, nil
}

func GetCommissions(ctx context.Context, employeeId int) ([]*Commission, error) {
	db := config.GetDB()
	var results []*Commission
	err := db.WithContext(ctx).Preload("Sale").
		Where("employee_id = ?", employeeId).Order("created_at").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func GetCommissionPayments(ctx context.Context, employeeId int) ([]*CommissionPayment, error) {
	db := config.GetDB()
	var results []*CommissionPayment
	err := db.WithContext(ctx).Preload("Allocations").
		Where("employee_id = ?", employeeId).Order("paid_at desc, id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
