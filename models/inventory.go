package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Inventory is one batch of stock, owned 1:1 by the shipment that brought it
// in. Quantity moves only through the guarded helpers below, always inside a
// transaction holding the row lock, so it can never go negative.
type Inventory struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ProductId  int       `gorm:"index;not null" json:"product_id"`
	Product    *Product  `json:"product"`
	ShipmentId int       `gorm:"uniqueIndex;not null" json:"shipment_id"`
	Shipment   *Shipment `json:"shipment"`
	Quantity   int       `gorm:"not null;default:0" json:"quantity"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LostProduct is the audit row for stock written off as lost or damaged.
type LostProduct struct {
	ID          int        `gorm:"primary_key" json:"id"`
	ProductId   int        `gorm:"index;not null" json:"product_id"`
	InventoryId int        `gorm:"index;not null" json:"inventory_id"`
	Inventory   *Inventory `json:"inventory"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	Notes       string     `gorm:"size:255" json:"notes"`
	LostAt      time.Time  `gorm:"index;not null" json:"lost_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewLostProduct struct {
	InventoryId int       `json:"inventory_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
	Notes       string    `json:"notes"`
	LostAt      time.Time `json:"lost_at"`
}

func fetchInventoryForUpdate(tx *gorm.DB, ctx context.Context, id int) (*Inventory, error) {
	var inventory Inventory
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inventory, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	var shipment Shipment
	if err := tx.WithContext(ctx).First(&shipment, inventory.ShipmentId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	var product Product
	if err := tx.WithContext(ctx).First(&product, inventory.ProductId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	inventory.Shipment = &shipment
	inventory.Product = &product
	return &inventory, nil
}

// consumeInventory deducts units from a locked batch. The caller must hold
// the row lock obtained by fetchInventoryForUpdate.
func consumeInventory(tx *gorm.DB, ctx context.Context, inventory *Inventory, units int) error {
	if units <= 0 {
		return fmt.Errorf("%w: consumed quantity must be positive", utils.ErrorValidation)
	}
	if units > inventory.Quantity {
		return fmt.Errorf("%w: need %d units of %s (batch %s) but only %d in stock",
			utils.ErrorInsufficientInventory, units, inventory.Product.Name, inventory.Shipment.BatchNumber, inventory.Quantity)
	}
	inventory.Quantity -= units
	return tx.WithContext(ctx).Model(inventory).Update("Quantity", inventory.Quantity).Error
}

func restockInventory(tx *gorm.DB, ctx context.Context, inventory *Inventory, units int) error {
	if units <= 0 {
		return fmt.Errorf("%w: restocked quantity must be positive", utils.ErrorValidation)
	}
	inventory.Quantity += units
	return tx.WithContext(ctx).Model(inventory).Update("Quantity", inventory.Quantity).Error
}

func GetInventory(ctx context.Context, id int) (*Inventory, error) {
	return utils.FetchModel[Inventory](ctx, id, "Product", "Shipment")
}

// GetAvailableInventories lists batches that still hold stock, for the sale
// entry screen.
func GetAvailableInventories(ctx context.Context, productId int) ([]*Inventory, error) {
	db := config.GetDB()
	var results []*Inventory
	dbCtx := db.WithContext(ctx).Preload("Product").Preload("Shipment").Where("quantity > 0")
	if productId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", productId)
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CreateLostProduct writes off stock from a batch. The decrement and the
// audit row commit together.
func CreateLostProduct(ctx context.Context, input *NewLostProduct) (*LostProduct, error) {

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	inventory, err := fetchInventoryForUpdate(tx, ctx, input.InventoryId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := consumeInventory(tx, ctx, inventory, input.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	lostAt := input.LostAt
	if lostAt.IsZero() {
		lostAt = time.Now().UTC()
	}
	lost := LostProduct{
		ProductId:   inventory.ProductId,
		InventoryId: inventory.ID,
		Quantity:    input.Quantity,
		Notes:       input.Notes,
		LostAt:      lostAt,
	}
	if err := tx.WithContext(ctx).Create(&lost).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, lostAt, lost.ID, NotificationReferenceTypeLostProduct, lost, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &lost, nil
}

// DeleteLostProduct reverses a write-off, returning the units to the batch.
func DeleteLostProduct(ctx context.Context, id int) (*LostProduct, error) {

	lost, err := utils.FetchModel[LostProduct](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	inventory, err := fetchInventoryForUpdate(tx, ctx, lost.InventoryId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := restockInventory(tx, ctx, inventory, lost.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Delete(lost).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), lost.ID, NotificationReferenceTypeLostProduct, nil, lost, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return lost, nil
}

func GetLostProducts(ctx context.Context) ([]*LostProduct, error) {
	return utils.FetchAllModels[LostProduct](ctx, "Inventory")
}
