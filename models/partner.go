package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Partner is a company funder. Balances are not stored on the partner; they
// are recomputed per currency from the transaction history.
type Partner struct {
	ID        int       `gorm:"primary_key" json:"id"`
	FullName  string    `gorm:"size:100;not null" json:"full_name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PartnerTransaction struct {
	ID              int                    `gorm:"primary_key" json:"id"`
	PartnerId       int                    `gorm:"index;not null" json:"partner_id"`
	Partner         *Partner               `json:"partner"`
	TransactionType PartnerTransactionType `gorm:"size:10;index;not null" json:"transaction_type"`
	CurrencyCode    CurrencyCode           `gorm:"size:3;index;not null" json:"currency_code"`
	Amount          decimal.Decimal        `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionDate time.Time              `gorm:"index;not null" json:"transaction_date"`
	Notes           string                 `gorm:"size:255" json:"notes"`
	CreatedAt       time.Time              `gorm:"autoCreateTime" json:"created_at"`
}

type NewPartner struct {
	FullName string `json:"full_name" validate:"required,max=100"`
}

type NewPartnerTransaction struct {
	PartnerId       int                    `json:"partner_id" validate:"required"`
	TransactionType PartnerTransactionType `json:"transaction_type" validate:"required"`
	CurrencyCode    CurrencyCode           `json:"currency_code" validate:"required"`
	Amount          decimal.Decimal        `json:"amount"`
	TransactionDate time.Time              `json:"transaction_date" validate:"required"`
	Notes           string                 `json:"notes"`
}

func CreatePartner(ctx context.Context, input *NewPartner) (*Partner, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	partner := Partner{FullName: input.FullName}
	if err := db.WithContext(ctx).Create(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func GetPartner(ctx context.Context, id int) (*Partner, error) {
	return utils.FetchModel[Partner](ctx, id)
}

func GetPartners(ctx context.Context) ([]*Partner, error) {
	return utils.FetchAllModels[Partner](ctx)
}

func fetchPartnerForUpdate(tx *gorm.DB, ctx context.Context, id int) (*Partner, error) {
	var partner Partner
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&partner, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &partner, nil
}

// partnerBalance computes sum(deposits) - sum(withdrawals) for one
// partner+currency within the caller's transaction.
func partnerBalance(tx *gorm.DB, ctx context.Context, partnerId int, code CurrencyCode) (decimal.Decimal, error) {
	deposits, err := sumDecimal(tx, ctx, &PartnerTransaction{}, "amount",
		"partner_id = ? AND currency_code = ? AND transaction_type = ?", partnerId, code, PartnerTransactionTypeDeposit)
	if err != nil {
		return decimal.Zero, err
	}
	withdrawals, err := sumDecimal(tx, ctx, &PartnerTransaction{}, "amount",
		"partner_id = ? AND currency_code = ? AND transaction_type = ?", partnerId, code, PartnerTransactionTypeWithdrawal)
	if err != nil {
		return decimal.Zero, err
	}
	return deposits.Sub(withdrawals), nil
}

func (input *NewPartnerTransaction) validate() error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if !input.TransactionType.IsValid() {
		return fmt.Errorf("%w: unknown transaction type %q", utils.ErrorValidation, input.TransactionType)
	}
	if !input.CurrencyCode.IsValid() {
		return fmt.Errorf("%w: unknown currency %q", utils.ErrorValidation, input.CurrencyCode)
	}
	if input.Amount.IsNegative() {
		return fmt.Errorf("%w: amount cannot be negative", utils.ErrorValidation)
	}
	return nil
}

// CreatePartnerTransaction records a deposit or withdrawal. The partner row
// is locked for the duration of the balance check so two concurrent
// withdrawals cannot both see the same balance.
func CreatePartnerTransaction(ctx context.Context, input *NewPartnerTransaction) (*PartnerTransaction, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	partner, err := fetchPartnerForUpdate(tx, ctx, input.PartnerId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.TransactionType == PartnerTransactionTypeWithdrawal {
		balance, err := partnerBalance(tx, ctx, partner.ID, input.CurrencyCode)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if input.Amount.GreaterThan(balance) {
			tx.Rollback()
			return nil, fmt.Errorf("%w: withdrawal of %s %s exceeds available balance %s for %s",
				utils.ErrorInsufficientFunds, input.Amount, input.CurrencyCode, balance, partner.FullName)
		}
	}

	transaction := PartnerTransaction{
		PartnerId:       input.PartnerId,
		TransactionType: input.TransactionType,
		CurrencyCode:    input.CurrencyCode,
		Amount:          input.Amount,
		TransactionDate: input.TransactionDate,
		Notes:           input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&transaction).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	operation := FinancialLogOperationPartnerDeposit
	signedAmount := transaction.Amount
	if transaction.TransactionType == PartnerTransactionTypeWithdrawal {
		operation = FinancialLogOperationPartnerWithdrawal
		signedAmount = transaction.Amount.Neg()
	}
	entry := FinancialLog{
		OperationType: operation,
		ReferenceId:   transaction.ID,
		Description:   fmt.Sprintf("Partner %s %s %s %s", partner.FullName, transaction.TransactionType, transaction.Amount, transaction.CurrencyCode),
		Amount:        signedAmount,
		CurrencyCode:  transaction.CurrencyCode,
		SdgEquivalent: ConvertToSDG(ctx, signedAmount, transaction.CurrencyCode),
		Notes:         transaction.Notes,
	}
	if err := createFinancialLog(tx, ctx, &entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, transaction.TransactionDate, transaction.ID, NotificationReferenceTypePartnerTransaction, transaction, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &transaction, nil
}

// DeletePartnerTransaction removes a deposit or withdrawal. Removing a
// deposit that later withdrawals already depend on is rejected, so a partner
// balance can never be driven negative retroactively.
func DeletePartnerTransaction(ctx context.Context, id int) (*PartnerTransaction, error) {

	transaction, err := utils.FetchModel[PartnerTransaction](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	partner, err := fetchPartnerForUpdate(tx, ctx, transaction.PartnerId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if transaction.TransactionType == PartnerTransactionTypeDeposit {
		balance, err := partnerBalance(tx, ctx, partner.ID, transaction.CurrencyCode)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if transaction.Amount.GreaterThan(balance) {
			tx.Rollback()
			return nil, fmt.Errorf("%w: removing deposit of %s %s would leave %s with a negative balance",
				utils.ErrorInsufficientFunds, transaction.Amount, transaction.CurrencyCode, partner.FullName)
		}
	}

	if err := tx.WithContext(ctx).Delete(transaction).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	reversed := transaction.Amount
	if transaction.TransactionType == PartnerTransactionTypeDeposit {
		reversed = transaction.Amount.Neg()
	}
	entry := FinancialLog{
		OperationType: FinancialLogOperationBalanceAdjustment,
		ReferenceId:   transaction.ID,
		Description:   fmt.Sprintf("Reverted partner %s of %s %s for %s", transaction.TransactionType, transaction.Amount, transaction.CurrencyCode, partner.FullName),
		Amount:        reversed,
		CurrencyCode:  transaction.CurrencyCode,
		SdgEquivalent: ConvertToSDG(ctx, reversed, transaction.CurrencyCode),
		Notes:         transaction.Notes,
	}
	if err := createFinancialLog(tx, ctx, &entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), transaction.ID, NotificationReferenceTypePartnerTransaction, nil, transaction, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return transaction, nil
}

type PartnerBalanceResponse struct {
	CurrencyCode  CurrencyCode    `json:"currency_code"`
	Balance       decimal.Decimal `json:"balance"`
	SdgEquivalent decimal.Decimal `json:"sdg_equivalent"`
}

// GetPartnerBalances returns the partner's balance in every supported
// currency, each annotated with its SDG equivalent.
func GetPartnerBalances(ctx context.Context, partnerId int) ([]*PartnerBalanceResponse, error) {

	if err := utils.ValidateResourceId[Partner](ctx, partnerId); err != nil {
		return nil, err
	}

	currencies, err := GetCurrencies(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	results := make([]*PartnerBalanceResponse, 0, len(currencies))
	for _, currency := range currencies {
		balance, err := partnerBalance(db, ctx, partnerId, currency.Code)
		if err != nil {
			return nil, err
		}
		results = append(results, &PartnerBalanceResponse{
			CurrencyCode:  currency.Code,
			Balance:       balance,
			SdgEquivalent: ConvertToSDG(ctx, balance, currency.Code),
		})
	}
	return results, nil
}

func GetPartnerTransactions(ctx context.Context, partnerId int) ([]*PartnerTransaction, error) {
	db := config.GetDB()
	var results []*PartnerTransaction
	dbCtx := db.WithContext(ctx)
	if partnerId > 0 {
		dbCtx = dbCtx.Where("partner_id = ?", partnerId)
	}
	if err := dbCtx.Order("transaction_date desc, id desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
