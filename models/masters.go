package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
)

// Lookup masters share one shape: name, badge color, sort order, active flag.

type WorkStatus struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Color     *string   `gorm:"size:20" json:"color"`
	SortOrder int       `json:"sort_order"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkStatus) TableName() string {
	return "work_statuses"
}

type WorkPriority struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Color     *string   `gorm:"size:20" json:"color"`
	SortOrder int       `json:"sort_order"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkPriority) TableName() string {
	return "work_priorities"
}

type WorkPurpose struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Color     *string   `gorm:"size:20" json:"color"`
	SortOrder int       `json:"sort_order"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type WorkCostCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	SortOrder int       `json:"sort_order"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkCostCategory) TableName() string {
	return "work_cost_categories"
}

type RepairType struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	SortOrder int       `json:"sort_order"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type WorkContentTag struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Color     *string   `gorm:"size:20" json:"color"`
	SortOrder int       `json:"sort_order"`
	IsActive  *bool     `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListActiveMaster loads one master table into dest, active rows only,
// ordered for display. dest must be a pointer to a slice of a master type.
func ListActiveMaster(ctx context.Context, dest interface{}) error {
	db := config.GetDB()
	return db.WithContext(ctx).Where("is_active = ?", true).Order("sort_order, id").Find(dest).Error
}
