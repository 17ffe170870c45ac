package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/utils"
)

type Area struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null;unique" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Client struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Address   string    `gorm:"size:255" json:"address"`
	AreaId    *int      `gorm:"index" json:"area_id"`
	Area      *Area     `json:"area"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name    string `json:"name" validate:"required,max=255"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=255"`
	AreaId  *int   `json:"area_id"`
}

func CreateArea(ctx context.Context, name string) (*Area, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: area name is required", utils.ErrorValidation)
	}
	db := config.GetDB()
	area := Area{Name: name}
	if err := db.WithContext(ctx).Create(&area).Error; err != nil {
		return nil, err
	}
	return &area, nil
}

func GetAreas(ctx context.Context) ([]*Area, error) {
	return utils.FetchAllModels[Area](ctx)
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
		return nil, err
	}
	if input.AreaId != nil {
		if err := utils.ValidateResourceId[Area](ctx, *input.AreaId); err != nil {
			return nil, fmt.Errorf("%w: area %d not found", utils.ErrorValidation, *input.AreaId)
		}
	}

	db := config.GetDB()
	client := Client{
		Name:    input.Name,
		Phone:   input.Phone,
		Address: input.Address,
		AreaId:  input.AreaId,
	}
	if err := db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
		return nil, err
	}
	client, err := utils.FetchModel[Client](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(client).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Phone":   input.Phone,
		"Address": input.Address,
		"AreaId":  input.AreaId,
	}).Error
	if err != nil {
		return nil, err
	}
	return client, nil
}

func DeleteClient(ctx context.Context, id int) (*Client, error) {
	client, err := utils.FetchModel[Client](ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[Sale](ctx, "client_id = ?", client.ID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: client %s has recorded sales and cannot be deleted", utils.ErrorValidation, client.Name)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(client).Error; err != nil {
		return nil, err
	}
	return client, nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	return utils.FetchModel[Client](ctx, id, "Area")
}

func GetClients(ctx context.Context) ([]*Client, error) {
	db := config.GetDB()
	var results []*Client
	if err := db.WithContext(ctx).Preload("Area").Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
