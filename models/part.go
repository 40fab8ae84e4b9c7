package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"gorm.io/gorm"
)

// Part is a locally tracked maintenance part. ExternalId links it to a
// stock record in the Conservation API; a part without ExternalId is
// purely local. At most one part may reference a given external id.
type Part struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ExternalId *string   `gorm:"size:255;uniqueIndex" json:"external_id"`
	PartNo     string    `gorm:"size:100;not null" json:"part_no" binding:"required"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Memo       *string   `gorm:"type:text" json:"memo"`
	ImagePath  *string   `gorm:"size:255" json:"image_path"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EquipmentPart links a part to the equipments it is a spare for.
type EquipmentPart struct {
	EquipmentId int       `gorm:"primaryKey" json:"equipment_id"`
	PartId      int       `gorm:"primaryKey" json:"part_id"`
	Note        *string   `gorm:"type:text" json:"note"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPartById(ctx context.Context, id int) (*Part, error) {
	var part Part
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&part).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &part, nil
}

// PartExternalIdExists reports whether a part already references externalId.
func PartExternalIdExists(ctx context.Context, externalId string) (bool, error) {
	var count int64
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Part{}).
		Where("external_id = ?", externalId).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListRegisteredExternalIds returns every non-null external id, for
// flagging already-registered rows in remote search results.
func ListRegisteredExternalIds(ctx context.Context) ([]string, error) {
	var ids []string
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Part{}).
		Where("external_id IS NOT NULL").Pluck("external_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListPartsByPartNo returns all parts ordered by part number.
func ListPartsByPartNo(ctx context.Context) ([]Part, error) {
	var parts []Part
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("part_no").Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}
