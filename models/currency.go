package models

import (
	"context"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Currency is immutable reference data, seeded by MigrateTable. The row also
// serves as the lock anchor that serializes balance-guarded writes in its
// currency (see fetchCurrencyForUpdate).
type Currency struct {
	ID   int          `gorm:"primary_key" json:"id"`
	Code CurrencyCode `gorm:"size:3;uniqueIndex;not null" json:"code"`
	Name string       `gorm:"size:50" json:"name"`
}

func GetCurrencies(ctx context.Context) ([]*Currency, error) {
	return utils.FetchAllModels[Currency](ctx)
}

func GetCurrencyByCode(ctx context.Context, code CurrencyCode) (*Currency, error) {
	db := config.GetDB()
	var currency Currency
	if err := db.WithContext(ctx).Where("code = ?", code).First(&currency).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &currency, nil
}

func fetchCurrencyForUpdate(tx *gorm.DB, ctx context.Context, code CurrencyCode) (*Currency, error) {
	var currency Currency
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).First(&currency).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &currency, nil
}

func sumDecimal(tx *gorm.DB, ctx context.Context, model interface{}, column string, condition string, args ...interface{}) (decimal.Decimal, error) {
	total := decimal.Zero
	dbCtx := tx.WithContext(ctx).Model(model).Select("COALESCE(SUM(" + column + "), 0)")
	if condition != "" {
		dbCtx = dbCtx.Where(condition, args...)
	}
	if err := dbCtx.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// companyBalance recomputes the company balance for one currency from the
// event log. Nothing is cached or mutated in place, so edits and deletes can
// never leave a stale counter behind.
//
// Cost attribution is intentionally asymmetric and mirrors how this business
// actually spends: shipment extra costs, expenses and commission payouts are
// paid in SDG; supplier invoices are settled in USD. Do not generalize.
func companyBalance(tx *gorm.DB, ctx context.Context, code CurrencyCode) (decimal.Decimal, error) {
	bought, err := sumDecimal(tx, ctx, &Exchange{}, "bought_amount", "bought_currency = ?", code)
	if err != nil {
		return decimal.Zero, err
	}
	sold, err := sumDecimal(tx, ctx, &Exchange{}, "sold_amount", "sold_currency = ?", code)
	if err != nil {
		return decimal.Zero, err
	}
	deposits, err := sumDecimal(tx, ctx, &PartnerTransaction{}, "amount", "currency_code = ? AND transaction_type = ?", code, PartnerTransactionTypeDeposit)
	if err != nil {
		return decimal.Zero, err
	}
	withdrawals, err := sumDecimal(tx, ctx, &PartnerTransaction{}, "amount", "currency_code = ? AND transaction_type = ?", code, PartnerTransactionTypeWithdrawal)
	if err != nil {
		return decimal.Zero, err
	}

	balance := bought.Add(deposits).Sub(sold).Sub(withdrawals)

	if code == CurrencyCodeSDG {
		invoicePayments, err := sumDecimal(tx, ctx, &InvoicePayment{}, "amount", "")
		if err != nil {
			return decimal.Zero, err
		}
		shipmentCosts, err := sumDecimal(tx, ctx, &Shipment{}, "shipment_cost", "")
		if err != nil {
			return decimal.Zero, err
		}
		expenses, err := sumDecimal(tx, ctx, &Expense{}, "amount", "")
		if err != nil {
			return decimal.Zero, err
		}
		commissionPayouts, err := sumDecimal(tx, ctx, &CommissionPayment{}, "amount", "")
		if err != nil {
			return decimal.Zero, err
		}
		balance = balance.Add(invoicePayments).Sub(shipmentCosts).Sub(expenses).Sub(commissionPayouts)
	}

	if code == CurrencyCodeUSD {
		supplierPayments, err := sumDecimal(tx, ctx, &SupplierPayment{}, "amount", "")
		if err != nil {
			return decimal.Zero, err
		}
		balance = balance.Sub(supplierPayments)
	}

	return balance, nil
}

// GetCompanyBalance returns the company's balance in the given currency,
// recomputed from the full transaction history.
func GetCompanyBalance(ctx context.Context, code CurrencyCode) (decimal.Decimal, error) {
	if !code.IsValid() {
		return decimal.Zero, utils.ErrorRecordNotFound
	}
	return companyBalance(config.GetDB(), ctx, code)
}

type CompanyBalanceResponse struct {
	CurrencyCode  CurrencyCode    `json:"currency_code"`
	Balance       decimal.Decimal `json:"balance"`
	SdgEquivalent decimal.Decimal `json:"sdg_equivalent"`
}

// GetCompanyBalances returns every supported currency with its balance and
// SDG equivalent, including currencies with no activity yet.
func GetCompanyBalances(ctx context.Context) ([]*CompanyBalanceResponse, error) {
	currencies, err := GetCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*CompanyBalanceResponse, 0, len(currencies))
	for _, currency := range currencies {
		balance, err := GetCompanyBalance(ctx, currency.Code)
		if err != nil {
			return nil, err
		}
		results = append(results, &CompanyBalanceResponse{
			CurrencyCode:  currency.Code,
			Balance:       balance,
			SdgEquivalent: ConvertToSDG(ctx, balance, currency.Code),
		})
	}
	return results, nil
}

// Rates used when no SDG exchange has been recorded for the currency yet.
func fallbackRate(code CurrencyCode) decimal.Decimal {
	switch code {
	case CurrencyCodeUSD:
		return decimal.NewFromInt(2550)
	case CurrencyCodeAED:
		return decimal.NewFromInt(700)
	}
	return decimal.NewFromInt(1)
}

func rateCacheKey(code CurrencyCode) string {
	return "fxRate:" + string(code)
}

// GetLatestExchangeRate returns SDG per one unit of the given currency, taken
// from the most recent SDG-selling exchange, falling back to the hardcoded
// defaults when none has been recorded.
func GetLatestExchangeRate(ctx context.Context, code CurrencyCode) decimal.Decimal {
	if code == CurrencyCodeSDG {
		return decimal.NewFromInt(1)
	}

	var cached string
	if exists, err := config.GetRedisObject(rateCacheKey(code), &cached); err == nil && exists {
		if rate, perr := utils.ParseDecimal(cached); perr == nil && rate.IsPositive() {
			return rate
		}
	}

	db := config.GetDB()
	var latest Exchange
	err := db.WithContext(ctx).
		Where("sold_currency = ? AND bought_currency = ?", CurrencyCodeSDG, code).
		Order("exchange_date desc, id desc").
		First(&latest).Error
	if err != nil || !latest.Rate.IsPositive() {
		return fallbackRate(code)
	}

	if err := config.SetRedisObject(rateCacheKey(code), latest.Rate.String(), time.Hour); err != nil {
		config.LogError(config.GetLogger(), "currency.go", "GetLatestExchangeRate", "cache rate", code, err)
	}
	return latest.Rate
}

// ConvertToSDG converts an amount into the base reporting currency using the
// latest recorded rate. A zero amount converts to zero; the conversion never
// fails (rate lookup falls back to defaults), because it only annotates
// reports and balances.
func ConvertToSDG(ctx context.Context, amount decimal.Decimal, code CurrencyCode) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(GetLatestExchangeRate(ctx, code))
}
