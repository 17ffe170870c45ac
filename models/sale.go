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

// Sale is a multi-line sale in SDG. Total is kept in sync with its items and
// returns; the invoice created with the sale mirrors the total at creation
// time and is not re-synced afterwards.
type Sale struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ClientId   *int            `gorm:"index" json:"client_id"`
	Client     *Client         `json:"client"`
	EmployeeId *int            `gorm:"index" json:"employee_id"`
	Employee   *Employee       `json:"employee"`
	Total      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Items      []SaleItem      `json:"items"`
	Invoice    *Invoice        `json:"invoice"`
	CreatedAt  time.Time       `gorm:"index;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaleItem sells from one batch. FreeGoodsDiscount grants extra units drawn
// from stock without charge; PriceDiscount divides the unit price.
type SaleItem struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SaleId            int             `gorm:"index;not null" json:"sale_id"`
	InventoryId       int             `gorm:"index;not null" json:"inventory_id"`
	Inventory         *Inventory      `json:"inventory"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	Price             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	FreeGoodsDiscount decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"free_goods_discount"`
	PriceDiscount     decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"price_discount"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FreeUnits is floor(quantity * free_goods_discount / 100).
func (item *SaleItem) FreeUnits() int {
	if item.FreeGoodsDiscount.IsZero() {
		return 0
	}
	units := decimal.NewFromInt(int64(item.Quantity)).
		Mul(item.FreeGoodsDiscount).
		Div(decimal.NewFromInt(100))
	return int(units.IntPart())
}

// TotalUnits is the stock drawn from the batch: paid units plus free units.
func (item *SaleItem) TotalUnits() int {
	return item.Quantity + item.FreeUnits()
}

// DiscountedUnitPrice is price / (1 + price_discount/100).
func (item *SaleItem) DiscountedUnitPrice() decimal.Decimal {
	if item.PriceDiscount.IsZero() {
		return item.Price
	}
	divisor := decimal.NewFromInt(1).Add(item.PriceDiscount.Div(decimal.NewFromInt(100)))
	return item.Price.Div(divisor)
}

// Total charges the discounted unit price for the paid quantity only.
func (item *SaleItem) Total() decimal.Decimal {
	return item.DiscountedUnitPrice().Mul(decimal.NewFromInt(int64(item.Quantity)))
}

type NewSaleItem struct {
	InventoryId       int             `json:"inventory_id" validate:"required"`
	Quantity          int             `json:"quantity" validate:"required,gt=0"`
	Price             decimal.Decimal `json:"price"`
	FreeGoodsDiscount decimal.Decimal `json:"free_goods_discount"`
	PriceDiscount     decimal.Decimal `json:"price_discount"`
}

type NewSale struct {
	ClientId   *int          `json:"client_id"`
	EmployeeId *int          `json:"employee_id"`
	DueDate    time.Time     `json:"due_date" validate:"required"`
	Items      []NewSaleItem `json:"items" validate:"required,min=1,dive"`
}

func (input *NewSale) validate(ctx context.Context) error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	for i := range input.Items {
		item := &input.Items[i]
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: item price cannot be negative", utils.ErrorValidation)
		}
		if item.FreeGoodsDiscount.IsNegative() || item.PriceDiscount.IsNegative() {
			return fmt.Errorf("%w: item discounts cannot be negative", utils.ErrorValidation)
		}
	}
	if input.ClientId != nil {
		if err := utils.ValidateResourceId[Client](ctx, *input.ClientId); err != nil {
			return fmt.Errorf("%w: client %d not found", utils.ErrorValidation, *input.ClientId)
		}
	}
	if input.EmployeeId != nil {
		if err := utils.ValidateResourceId[Employee](ctx, *input.EmployeeId); err != nil {
			return fmt.Errorf("%w: employee %d not found", utils.ErrorValidation, *input.EmployeeId)
		}
	}
	return nil
}

// CreateSale records the sale, its items, the stock consumption, the
// employee commission and the invoice in a single transaction. An item with
// a zero price falls back to the batch's USD list price converted to SDG at
// the latest rate.
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()

	sale := Sale{
		ClientId:   input.ClientId,
		EmployeeId: input.EmployeeId,
	}
	if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	total := decimal.Zero
	for i := range input.Items {
		itemInput := &input.Items[i]

		inventory, err := fetchInventoryForUpdate(tx, ctx, itemInput.InventoryId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		price := itemInput.Price
		if price.IsZero() && inventory.Shipment != nil {
			price = ConvertToSDG(ctx, inventory.Shipment.SaleUsd, CurrencyCodeUSD)
		}

		item := SaleItem{
			SaleId:            sale.ID,
			InventoryId:       inventory.ID,
			Quantity:          itemInput.Quantity,
			Price:             price,
			FreeGoodsDiscount: itemInput.FreeGoodsDiscount,
			PriceDiscount:     itemInput.PriceDiscount,
		}

		if err := consumeInventory(tx, ctx, inventory, item.TotalUnits()); err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		total = total.Add(item.Total())
		sale.Items = append(sale.Items, item)
	}

	if err := tx.WithContext(ctx).Model(&sale).Update("Total", total).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if sale.EmployeeId != nil {
		employee, err := utils.FetchModel[Employee](ctx, *sale.EmployeeId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if employee.CommissionPercentage.IsPositive() {
			if err := upsertCommission(tx, ctx, &sale, employee); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	invoice, err := createInvoiceForSale(tx, ctx, &sale, input.DueDate)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	sale.Invoice = invoice

	if err := PublishToNotifier(ctx, tx, sale.CreatedAt, sale.ID, NotificationReferenceTypeSale, sale, nil, NotificationActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &sale, nil
}

// calculateSaleTotal recomputes the sale total from its items minus the
// value of returned units, priced at each item's discounted unit price.
func calculateSaleTotal(tx *gorm.DB, ctx context.Context, saleId int) (decimal.Decimal, error) {

	var items []SaleItem
	if err := tx.WithContext(ctx).Where("sale_id = ?", saleId).Find(&items).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Total())
	}

	var returns []ReturnedProduct
	if err := tx.WithContext(ctx).Where("sale_id = ?", saleId).Find(&returns).Error; err != nil {
		return decimal.Zero, err
	}
	itemById := make(map[int]*SaleItem, len(items))
	for i := range items {
		itemById[items[i].ID] = &items[i]
	}
	for i := range returns {
		item, ok := itemById[returns[i].SaleItemId]
		if !ok {
			continue
		}
		value := item.DiscountedUnitPrice().Mul(decimal.NewFromInt(int64(returns[i].Quantity)))
		total = total.Sub(value)
	}

	return total, nil
}

// refreshSaleTotal recomputes and stores the sale total. The commission is
// deliberately left alone: it is fixed when the sale is finalized and moves
// only on a percentage change, never on a return.
func refreshSaleTotal(tx *gorm.DB, ctx context.Context, saleId int) (*Sale, error) {

	var sale Sale
	if err := tx.WithContext(ctx).First(&sale, saleId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	total, err := calculateSaleTotal(tx, ctx, saleId)
	if err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&sale).Update("Total", total).Error; err != nil {
		return nil, err
	}
	sale.Total = total

	return &sale, nil
}

// DeleteSale restocks the net consumed units and removes the sale, its
// items, returns, commission and invoice. Rejected when the invoice already
// has payments; those must be deleted first.
func DeleteSale(ctx context.Context, id int) (*Sale, error) {

	sale, err := utils.FetchModel[Sale](ctx, id, "Items", "Invoice")
	if err != nil {
		return nil, err
	}

	if sale.Invoice != nil {
		paid, err := utils.ResourceCountWhere[InvoicePayment](ctx, "invoice_id = ?", sale.Invoice.ID)
		if err != nil {
			return nil, err
		}
		if paid > 0 {
			return nil, fmt.Errorf("%w: invoice %s has payments; delete them before deleting the sale", utils.ErrorValidation, sale.Invoice.Number)
		}
	}

	db := config.GetDB()
	tx := db.Begin()

	var returns []ReturnedProduct
	if err := tx.WithContext(ctx).Where("sale_id = ?", sale.ID).Find(&returns).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	returnedByItem := make(map[int]int)
	for i := range returns {
		returnedByItem[returns[i].SaleItemId] += returns[i].Quantity
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		inventory, err := fetchInventoryForUpdate(tx, ctx, item.InventoryId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		netUnits := item.TotalUnits() - returnedByItem[item.ID]
		if netUnits > 0 {
			if err := restockInventory(tx, ctx, inventory, netUnits); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	if err := tx.WithContext(ctx).Where("sale_id = ?", sale.ID).Delete(&ReturnedProduct{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("sale_id = ?", sale.ID).Delete(&SaleItem{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("sale_id = ?", sale.ID).Delete(&Commission{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if sale.Invoice != nil {
		if err := tx.WithContext(ctx).Delete(sale.Invoice).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.WithContext(ctx).Delete(sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := PublishToNotifier(ctx, tx, time.Now().UTC(), sale.ID, NotificationReferenceTypeSale, nil, sale, NotificationActionDelete); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return sale, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	return utils.FetchModel[Sale](ctx, id, "Client", "Employee", "Items", "Items.Inventory", "Items.Inventory.Product", "Invoice")
}

func GetSales(ctx context.Context) ([]*Sale, error) {
	db := config.GetDB()
	var results []*Sale
	err := db.WithContext(ctx).Preload("Client").Preload("Employee").Preload("Items").Preload("Invoice").
		Order("created_at desc, id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
