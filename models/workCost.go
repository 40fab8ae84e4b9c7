package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"github.com/shopspring/decimal"
)

type WorkCost struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	WorkId             int             `gorm:"index;not null" json:"work_id"`
	WorkCostCategoryId *int            `json:"work_cost_category_id"`
	Name               string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Amount             decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	IncurredOn         *time.Time      `json:"incurred_on"`
	Note               *string         `gorm:"size:255" json:"note"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Category *WorkCostCategory `gorm:"foreignKey:WorkCostCategoryId" json:"category,omitempty"`
}

func ListWorkCosts(ctx context.Context, workId int) ([]WorkCost, error) {
	var costs []WorkCost
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("Category").Where("work_id = ?", workId).Order("id").Find(&costs).Error
	if err != nil {
		return nil, err
	}
	return costs, nil
}

// SumWorkCosts totals the registered costs for one work.
func SumWorkCosts(ctx context.Context, workId int) (decimal.Decimal, error) {
	var costs []WorkCost
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("work_id = ?", workId).Find(&costs).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, cost := range costs {
		total = total.Add(cost.Amount)
	}
	return total, nil
}
