package models

import (
	"context"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FinancialLog is the append-only audit trail of balance-affecting operations.
// Rows are written inside the same transaction as the operation they describe
// and are never updated.
type FinancialLog struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	OperationType FinancialLogOperation `gorm:"size:32;index;not null" json:"operation_type"`
	ReferenceId   int                   `gorm:"index" json:"reference_id"`
	Description   string                `gorm:"size:500" json:"description"`
	Amount        decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CurrencyCode  CurrencyCode          `gorm:"size:3;index" json:"currency_code"`
	SdgEquivalent decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"sdg_equivalent"`
	Notes         string                `gorm:"size:255" json:"notes"`
	Timestamp     time.Time             `gorm:"autoCreateTime;index" json:"timestamp"`
}

func createFinancialLog(tx *gorm.DB, ctx context.Context, entry *FinancialLog) error {
	return tx.WithContext(ctx).Create(entry).Error
}

// GetFinancialLogs returns the most recent audit entries, newest first.
func GetFinancialLogs(ctx context.Context, limit int) ([]*FinancialLog, error) {
	db := config.GetDB()
	var logs []*FinancialLog
	dbCtx := db.WithContext(ctx).Order("timestamp desc, id desc")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	if err := dbCtx.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
