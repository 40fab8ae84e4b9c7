package models

import (
	"context"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"time"
)

type WorkUsedPart struct {
	ID        int             `gorm:"primary_key" json:"id"`
	WorkId    int             `gorm:"index;not null" json:"work_id"`
	PartId    int             `gorm:"index;not null" json:"part_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"quantity"`
	Note      *string         `gorm:"size:255" json:"note"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Part *Part `gorm:"foreignKey:PartId" json:"part,omitempty"`
}

func GetWorkUsedPartById(ctx context.Context, id int) (*WorkUsedPart, error) {
	var usedPart WorkUsedPart
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("Part").Where("id = ?", id).Take(&usedPart).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &usedPart, nil
}

func ListWorkUsedParts(ctx context.Context, workId int) ([]WorkUsedPart, error) {
	var usedParts []WorkUsedPart
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("Part").Where("work_id = ?", workId).Order("id").Find(&usedParts).Error
	if err != nil {
		return nil, err
	}
	return usedParts, nil
}
