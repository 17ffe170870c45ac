package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// Shipment is one received batch from a supplier. It owns exactly one
// Inventory row, created with it, which tracks the remaining stock of the
// batch. ShipmentCost (the extra freight/handling cost) is paid in SDG and
// therefore feeds the SDG company balance.
type Shipment struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProductId    int             `gorm:"index;not null" json:"product_id"`
	Product      *Product        `json:"product"`
	SupplierId   int             `gorm:"index" json:"supplier_id"`
	Supplier     *Supplier       `json:"supplier"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	CostUsd      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_usd"`
	CostSdg      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_sdg"`
	SaleUsd      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sale_usd"`
	ShipmentCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipment_cost"`
	BatchNumber  string          `gorm:"size:100;index;not null" json:"batch_number"`
	ExpiryDate   time.Time       `gorm:"not null" json:"expiry_date"`
	ReceivedAt   time.Time       `gorm:"index;not null" json:"received_at"`
	Inventory    *Inventory      `json:"inventory"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShipment struct {
	ProductId    int             `json:"product_id" validate:"required"`
	SupplierId   int             `json:"supplier_id"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	CostUsd      decimal.Decimal `json:"cost_usd"`
	CostSdg      decimal.Decimal `json:"cost_sdg"`
	SaleUsd      decimal.Decimal `json:"sale_usd"`
	ShipmentCost decimal.Decimal `json:"shipment_cost"`
	BatchNumber  string          `json:"batch_number" validate:"required,max=100"`
	ExpiryDate   time.Time       `json:"expiry_date" validate:"required"`
	ReceivedAt   time.Time       `json:"received_at"`
}

func (input *NewShipment) validate(ctx context.Context) error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if input.CostUsd.IsNegative() || input.CostSdg.IsNegative() || input.SaleUsd.IsNegative() || input.ShipmentCost.IsNegative() {
		return fmt.Errorf("%w: shipment costs cannot be negative", utils.ErrorValidation)
	}
	if err := utils.ValidateResourceId[Product](ctx, input.ProductId); err != nil {
		return fmt.Errorf("%w: product %d not found", utils.ErrorValidation, input.ProductId)
	}
	if input.SupplierId > 0 {
		if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
			return fmt.Errorf("%w: supplier %d not found", utils.ErrorValidation, input.SupplierId)
		}
	}
	return nil
}

// CreateShipment receives a batch: the shipment row and its one inventory row
// commit together, stocked at the shipment quantity.
func CreateShipment(ctx context.Context, input *NewShipment) (*Shipment, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	db := config.GetDB()
	tx := db.Begin()

	shipment := Shipment{
		ProductId:    input.ProductId,
		SupplierId:   input.SupplierId,
		Quantity:     input.Quantity,
		CostUsd:      input.CostUsd,
		CostSdg:      input.CostSdg,
		SaleUsd:      input.SaleUsd,
		ShipmentCost: input.ShipmentCost,
		BatchNumber:  input.BatchNumber,
		ExpiryDate:   input.ExpiryDate,
		ReceivedAt:   receivedAt,
	}
	if err := tx.WithContext(ctx).Create(&shipment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	inventory := Inventory{
		ProductId:  shipment.ProductId,
		ShipmentId: shipment.ID,
		Quantity:   shipment.Quantity,
	}
	if err := tx.WithContext(ctx).Create(&inventory).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	shipment.Inventory = &inventory

	if err := PublishToNotifier(ctx, tx, receivedAt, shipment.ID, NotificationReferenceTypeShipment, shipment, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &shipment, nil
}

// UpdateShipment edits a shipment. A quantity change is applied to the batch
// as a delta; the update is rejected when the batch has already consumed more
// units than the new quantity allows.
func UpdateShipment(ctx context.Context, id int, input *NewShipment) (*Shipment, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	shipment, err := utils.FetchModel[Shipment](ctx, id)
	if err != nil {
		return nil, err
	}
	oldShipment := *shipment

	db := config.GetDB()
	tx := db.Begin()

	var inventory Inventory
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shipment_id = ?", shipment.ID).First(&inventory).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	delta := input.Quantity - shipment.Quantity
	if delta != 0 {
		newQuantity := inventory.Quantity + delta
		if newQuantity < 0 {
			tx.Rollback()
			return nil, fmt.Errorf("%w: batch %s has %d units left; cannot reduce shipment by %d",
				utils.ErrorInsufficientInventory, shipment.BatchNumber, inventory.Quantity, -delta)
		}
		if err := tx.WithContext(ctx).Model(&inventory).Update("Quantity", newQuantity).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	err = tx.WithContext(ctx).Model(shipment).Updates(map[string]interface{}{
		"ProductId":    input.ProductId,
		"SupplierId":   input.SupplierId,
		"Quantity":     input.Quantity,
		"CostUsd":      input.CostUsd,
		"CostSdg":      input.CostSdg,
		"SaleUsd":      input.SaleUsd,
		"ShipmentCost": input.ShipmentCost,
		"BatchNumber":  input.BatchNumber,
		"ExpiryDate":   input.ExpiryDate,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), shipment.ID, NotificationReferenceTypeShipment, shipment, oldShipment, NotificationActionUpdate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return shipment, nil
}

// DeleteShipment removes a batch and its inventory. Rejected once any sale
// has consumed from the batch, because the sale rows would dangle.
func DeleteShipment(ctx context.Context, id int) (*Shipment, error) {

	shipment, err := utils.FetchModel[Shipment](ctx, id, "Inventory")
	if err != nil {
		return nil, err
	}

	if shipment.Inventory != nil {
		count, err := utils.ResourceCountWhere[SaleItem](ctx, "inventory_id = ?", shipment.Inventory.ID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: batch %s has recorded sales and cannot be deleted", utils.ErrorValidation, shipment.BatchNumber)
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	if err := tx.WithContext(ctx).Where("shipment_id = ?", shipment.ID).Delete(&Inventory{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(shipment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), shipment.ID, NotificationReferenceTypeShipment, nil, shipment, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return shipment, nil
}

func GetShipment(ctx context.Context, id int) (*Shipment, error) {
	return utils.FetchModel[Shipment](ctx, id, "Product", "Supplier", "Inventory")
}

func GetShipments(ctx context.Context) ([]*Shipment, error) {
	db := config.GetDB()
	var results []*Shipment
	err := db.WithContext(ctx).Preload("Product").Preload("Supplier").Preload("Inventory").
		Order("received_at desc, id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
