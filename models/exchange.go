package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// Exchange records one currency-to-currency conversion of company funds.
// Balances are never adjusted in place: creating or deleting an exchange is
// enough, company balances recompute from the log on read.
type Exchange struct {
	ID             int             `gorm:"primary_key" json:"id"`
	SoldCurrency   CurrencyCode    `gorm:"size:3;index;not null" json:"sold_currency"`
	BoughtCurrency CurrencyCode    `gorm:"size:3;index;not null" json:"bought_currency"`
	SoldAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"sold_amount"`
	BoughtAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"bought_amount"`
	// Rate is sold/bought, fixed at write time. Informational only.
	Rate         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate"`
	ExchangeDate time.Time       `gorm:"index;not null" json:"exchange_date"`
	Notes        string          `gorm:"size:255" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExchange struct {
	SoldCurrency   CurrencyCode    `json:"sold_currency" validate:"required"`
	BoughtCurrency CurrencyCode    `json:"bought_currency" validate:"required"`
	SoldAmount     decimal.Decimal `json:"sold_amount"`
	BoughtAmount   decimal.Decimal `json:"bought_amount"`
	ExchangeDate   time.Time       `json:"exchange_date" validate:"required"`
	Notes          string          `json:"notes"`
}

func (input *NewExchange) validate() error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if !input.SoldCurrency.IsValid() {
		return fmt.Errorf("%w: unknown sold currency %q", utils.ErrorValidation, input.SoldCurrency)
	}
	if !input.BoughtCurrency.IsValid() {
		return fmt.Errorf("%w: unknown bought currency %q", utils.ErrorValidation, input.BoughtCurrency)
	}
	if input.SoldCurrency == input.BoughtCurrency {
		return fmt.Errorf("%w: sold and bought currencies must differ", utils.ErrorValidation)
	}
	if !input.SoldAmount.IsPositive() {
		return fmt.Errorf("%w: sold amount must be positive", utils.ErrorValidation)
	}
	if !input.BoughtAmount.IsPositive() {
		return fmt.Errorf("%w: bought amount must be positive", utils.ErrorValidation)
	}
	return nil
}

// CreateExchange records an exchange after verifying the company actually
// holds enough of the sold currency. The balance check and the insert commit
// atomically; the sold currency row is locked so concurrent exchanges cannot
// both pass the guard.
func CreateExchange(ctx context.Context, input *NewExchange) (*Exchange, error) {

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if _, err := fetchCurrencyForUpdate(tx, ctx, input.SoldCurrency); err != nil {
		tx.Rollback()
		return nil, err
	}

	available, err := companyBalance(tx, ctx, input.SoldCurrency)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if available.LessThan(input.SoldAmount) {
		tx.Rollback()
		return nil, fmt.Errorf("%w: selling %s %s but company balance is %s",
			utils.ErrorInsufficientFunds, input.SoldAmount, input.SoldCurrency, available)
	}

	exchange := Exchange{
		SoldCurrency:   input.SoldCurrency,
		BoughtCurrency: input.BoughtCurrency,
		SoldAmount:     input.SoldAmount,
		BoughtAmount:   input.BoughtAmount,
		Rate:           input.SoldAmount.Div(input.BoughtAmount),
		ExchangeDate:   input.ExchangeDate,
		Notes:          input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&exchange).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := FinancialLog{
		OperationType: FinancialLogOperationCurrencyExchange,
		ReferenceId:   exchange.ID,
		Description:   fmt.Sprintf("Exchanged %s %s for %s %s", exchange.SoldAmount, exchange.SoldCurrency, exchange.BoughtAmount, exchange.BoughtCurrency),
		Amount:        exchange.BoughtAmount,
		CurrencyCode:  exchange.BoughtCurrency,
		SdgEquivalent: ConvertToSDG(ctx, exchange.BoughtAmount, exchange.BoughtCurrency),
		Notes:         exchange.Notes,
	}
	if err := createFinancialLog(tx, ctx, &entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, exchange.ExchangeDate, exchange.ID, NotificationReferenceTypeExchange, exchange, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// The latest-rate cache may now be stale.
	if exchange.SoldCurrency == CurrencyCodeSDG {
		if err := config.RemoveRedisKey(rateCacheKey(exchange.BoughtCurrency)); err != nil {
			config.LogError(config.GetLogger(), "exchange.go", "CreateExchange", "drop rate cache", exchange.BoughtCurrency, err)
		}
	}

	return &exchange, nil
}

// DeleteExchange removes the exchange from the log. No balance reversal is
// needed; derived balances simply stop counting it.
func DeleteExchange(ctx context.Context, id int) (*Exchange, error) {

	exchange, err := utils.FetchModel[Exchange](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Delete(exchange).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := FinancialLog{
		OperationType: FinancialLogOperationBalanceAdjustment,
		ReferenceId:   exchange.ID,
		Description:   fmt.Sprintf("Reverted exchange of %s %s for %s %s", exchange.SoldAmount, exchange.SoldCurrency, exchange.BoughtAmount, exchange.BoughtCurrency),
		Amount:        exchange.BoughtAmount.Neg(),
		CurrencyCode:  exchange.BoughtCurrency,
		SdgEquivalent: ConvertToSDG(ctx, exchange.BoughtAmount, exchange.BoughtCurrency).Neg(),
		Notes:         exchange.Notes,
	}
	if err := createFinancialLog(tx, ctx, &entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), exchange.ID, NotificationReferenceTypeExchange, nil, exchange, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if exchange.SoldCurrency == CurrencyCodeSDG {
		if err := config.RemoveRedisKey(rateCacheKey(exchange.BoughtCurrency)); err != nil {
			config.LogError(config.GetLogger(), "exchange.go", "DeleteExchange", "drop rate cache", exchange.BoughtCurrency, err)
		}
	}

	return exchange, nil
}

func GetExchange(ctx context.Context, id int) (*Exchange, error) {
	return utils.FetchModel[Exchange](ctx, id)
}

func GetExchanges(ctx context.Context, soldCurrency *CurrencyCode, boughtCurrency *CurrencyCode) ([]*Exchange, error) {

	db := config.GetDB()
	var results []*Exchange

	dbCtx := db.WithContext(ctx)
	if soldCurrency != nil && *soldCurrency != "" {
		dbCtx = dbCtx.Where("sold_currency = ?", *soldCurrency)
	}
	if boughtCurrency != nil && *boughtCurrency != "" {
		dbCtx = dbCtx.Where("bought_currency = ?", *boughtCurrency)
	}
	err := dbCtx.Order("exchange_date desc, id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
