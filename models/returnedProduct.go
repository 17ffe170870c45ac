package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"gorm.io/gorm"
)

// ReturnedProduct puts sold units back into the batch they came from and
// lowers the sale total by the discounted value of the returned units.
type ReturnedProduct struct {
	ID         int       `gorm:"primary_key" json:"id"`
	SaleId     int       `gorm:"index;not null" json:"sale_id"`
	SaleItemId int       `gorm:"index;not null" json:"sale_item_id"`
	SaleItem   *SaleItem `json:"sale_item"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Notes      string    `gorm:"size:255" json:"notes"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewReturnedProduct struct {
	SaleItemId int    `json:"sale_item_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	Notes      string `json:"notes" validate:"max=255"`
}

func priorReturnedUnits(tx *gorm.DB, ctx context.Context, saleItemId int) (int, error) {
	var total int64
	err := tx.WithContext(ctx).Model(&ReturnedProduct{}).
		Where("sale_item_id = ?", saleItemId).
		Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// CreateReturnedProduct restocks the batch and recomputes the sale total and
// invoice status in one transaction. Returns beyond the item's paid quantity
// are rejected.
func CreateReturnedProduct(ctx context.Context, input *NewReturnedProduct) (*ReturnedProduct, error) {

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	item, err := utils.FetchModel[SaleItem](ctx, input.SaleItemId)
	if err != nil {
		return nil, fmt.Errorf("%w: sale item %d not found", utils.ErrorValidation, input.SaleItemId)
	}

	db := config.GetDB()
	tx := db.Begin()

	prior, err := priorReturnedUnits(tx, ctx, item.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if input.Quantity > item.Quantity-prior {
		tx.Rollback()
		return nil, fmt.Errorf("%w: only %d units of the item remain returnable", utils.ErrorValidation, item.Quantity-prior)
	}

	inventory, err := fetchInventoryForUpdate(tx, ctx, item.InventoryId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := restockInventory(tx, ctx, inventory, input.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	returned := ReturnedProduct{
		SaleId:     item.SaleId,
		SaleItemId: item.ID,
		Quantity:   input.Quantity,
		Notes:      input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&returned).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	sale, err := refreshSaleTotal(tx, ctx, item.SaleId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := refreshInvoiceStatusForSale(tx, ctx, sale.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, returned.CreatedAt, returned.ID, NotificationReferenceTypeReturnedProduct, returned, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &returned, nil
}

// DeleteReturnedProduct reverses a return: the units are consumed from the
// batch again and the sale total is restored. Rejected when the batch no
// longer holds enough stock.
func DeleteReturnedProduct(ctx context.Context, id int) (*ReturnedProduct, error) {

	returned, err := utils.FetchModel[ReturnedProduct](ctx, id, "SaleItem")
	if err != nil {
		return nil, err
	}
	if returned.SaleItem == nil {
		return nil, utils.ErrorRecordNotFound
	}

	db := config.GetDB()
	tx := db.Begin()

	inventory, err := fetchInventoryForUpdate(tx, ctx, returned.SaleItem.InventoryId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := consumeInventory(tx, ctx, inventory, returned.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Delete(returned).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	sale, err := refreshSaleTotal(tx, ctx, returned.SaleId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := refreshInvoiceStatusForSale(tx, ctx, sale.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), returned.ID, NotificationReferenceTypeReturnedProduct, nil, returned, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return returned, nil
}

func GetReturnedProducts(ctx context.Context, saleId int) ([]*ReturnedProduct, error) {
	db := config.GetDB()
	var results []*ReturnedProduct
	err := db.WithContext(ctx).Preload("SaleItem").
		Where("sale_id = ?", saleId).Order("created_at").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
