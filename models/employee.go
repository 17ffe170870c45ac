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

// Employee earns a commission on each sale at their current percentage.
// Changing the percentage rescales the unpaid part of every existing
// commission; paid amounts are never touched.
type Employee struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	Name                 string          `gorm:"size:255;not null" json:"name"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(7,4);default:0" json:"commission_percentage"`
	SalesTarget          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_target"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	Name                 string          `json:"name" validate:"required,max=255"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	SalesTarget          decimal.Decimal `json:"sales_target"`
}

func (input *NewEmployee) validate() error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if input.CommissionPercentage.IsNegative() || input.CommissionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: commission percentage must be between 0 and 100", utils.ErrorValidation)
	}
	if input.SalesTarget.IsNegative() {
		return fmt.Errorf("%w: sales target cannot be negative", utils.ErrorValidation)
	}
	return nil
}

func fetchEmployeeForUpdate(tx *gorm.DB, ctx context.Context, id int) (*Employee, error) {
	var employee Employee
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&employee, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &employee, nil
}

func CreateEmployee(ctx context.Context, input *NewEmployee) (*Employee, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	employee := Employee{
		Name:                 input.Name,
		CommissionPercentage: input.CommissionPercentage,
		SalesTarget:          input.SalesTarget,
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

// UpdateEmployee saves the new fields and, when the commission percentage
// changed, rescales the unpaid amount of all of the employee's commissions
// in the same transaction.
func UpdateEmployee(ctx context.Context, id int, input *NewEmployee) (*Employee, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	employee, err := utils.FetchModel[Employee](ctx, id)
	if err != nil {
		return nil, err
	}
	percentageChanged := !employee.CommissionPercentage.Equal(input.CommissionPercentage)

	db := config.GetDB()
	tx := db.Begin()

	err = tx.WithContext(ctx).Model(employee).Updates(map[string]interface{}{
		"Name":                 input.Name,
		"CommissionPercentage": input.CommissionPercentage,
		"SalesTarget":          input.SalesTarget,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if percentageChanged {
		if err := recalcEmployeeCommissions(tx, ctx, employee.ID, input.CommissionPercentage); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return employee, nil
}

func DeleteEmployee(ctx context.Context, id int) (*Employee, error) {
	employee, err := utils.FetchModel[Employee](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Commission](ctx, "employee_id = ?", employee.ID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: employee %s has commission records and cannot be deleted", utils.ErrorValidation, employee.Name)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(employee).Error; err != nil {
		return nil, err
	}
	return employee, nil
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	return utils.FetchModel[Employee](ctx, id)
}

func GetEmployees(ctx context.Context) ([]*Employee, error) {
	return utils.FetchAllModels[Employee](ctx)
}

// GetMonthlySales sums the employee's sale totals for one calendar month.
func GetMonthlySales(ctx context.Context, employeeId int, month time.Month, year int) (decimal.Decimal, error) {
	start, end := utils.MonthRange(month, year)
	db := config.GetDB()
	return sumDecimal(db, ctx, &Sale{}, "total",
		"employee_id = ? AND created_at >= ? AND created_at < ?", employeeId, start, end)
}

// GetMonthlyCommission sums the commission amounts earned by the employee on
// sales made in one calendar month.
func GetMonthlyCommission(ctx context.Context, employeeId int, month time.Month, year int) (decimal.Decimal, error) {
	start, end := utils.MonthRange(month, year)
	db := config.GetDB()
	return sumDecimal(db, ctx, &Commission{}, "amount",
		"employee_id = ? AND created_at >= ? AND created_at < ?", employeeId, start, end)
}
