package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"gorm.io/gorm"
)

// PartUserDisplayName is a per-user preferred name for a part. It takes
// precedence over the remote and local names when resolving display names.
// A row with both fields blank is deleted, never stored.
type PartUserDisplayName struct {
	ID           int       `gorm:"primary_key" json:"id"`
	PartId       int       `gorm:"not null;uniqueIndex:idx_part_user" json:"part_id"`
	UserId       int       `gorm:"not null;uniqueIndex:idx_part_user" json:"user_id"`
	DisplayName  *string   `gorm:"size:255" json:"display_name"`
	DisplaySName *string   `gorm:"size:255" json:"display_s_name"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertPartUserDisplayName stores the user's display name for a part.
// Blank name and short name remove the override entirely.
func UpsertPartUserDisplayName(ctx context.Context, partId, userId int, displayName, displaySName *string) error {
	db := config.GetDB()

	if displayName == nil && displaySName == nil {
		return db.WithContext(ctx).
			Where("part_id = ? AND user_id = ?", partId, userId).
			Delete(&PartUserDisplayName{}).Error
	}

	var record PartUserDisplayName
	err := db.WithContext(ctx).
		Where("part_id = ? AND user_id = ?", partId, userId).
		Take(&record).Error
	if err == gorm.ErrRecordNotFound {
		record = PartUserDisplayName{
			PartId:       partId,
			UserId:       userId,
			DisplayName:  displayName,
			DisplaySName: displaySName,
		}
		return db.WithContext(ctx).Create(&record).Error
	}
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Model(&record).
		Updates(map[string]interface{}{
			"display_name":   displayName,
			"display_s_name": displaySName,
		}).Error
}
