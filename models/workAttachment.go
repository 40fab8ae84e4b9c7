package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"gorm.io/gorm"
)

type WorkAttachment struct {
	ID           int       `gorm:"primary_key" json:"id"`
	WorkId       int       `gorm:"index;not null" json:"work_id"`
	FileName     string    `gorm:"size:255;not null" json:"file_name"`
	FilePath     string    `gorm:"size:255;not null" json:"file_path"`
	ContentType  string    `gorm:"size:100" json:"content_type"`
	FileSize     int64     `json:"file_size"`
	UploadedById *int      `json:"uploaded_by_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetWorkAttachmentById(ctx context.Context, id int) (*WorkAttachment, error) {
	var attachment WorkAttachment
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&attachment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &attachment, nil
}

func ListWorkAttachments(ctx context.Context, workId int) ([]WorkAttachment, error) {
	var attachments []WorkAttachment
	db := config.GetDB()
	err := db.WithContext(ctx).Where("work_id = ?", workId).Order("id").Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}
