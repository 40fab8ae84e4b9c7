package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
)

type WorkContent struct {
	ID               int        `gorm:"primary_key" json:"id"`
	WorkId           int        `gorm:"index;not null" json:"work_id"`
	WorkContentTagId *int       `json:"work_content_tag_id"`
	Body             string     `gorm:"type:text;not null" json:"body" binding:"required"`
	WorkedOn         *time.Time `json:"worked_on"`
	WorkedMinutes    *int       `json:"worked_minutes"`
	UserId           *int       `json:"user_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Tag  *WorkContentTag `gorm:"foreignKey:WorkContentTagId" json:"tag,omitempty"`
	User *User           `gorm:"foreignKey:UserId" json:"user,omitempty"`
}

func ListWorkContents(ctx context.Context, workId int) ([]WorkContent, error) {
	var contents []WorkContent
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("Tag").Preload("User").Where("work_id = ?", workId).Order("id").Find(&contents).Error
	if err != nil {
		return nil, err
	}
	return contents, nil
}
