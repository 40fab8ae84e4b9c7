package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
)

type WorkActivity struct {
	ID        int       `gorm:"primary_key" json:"id"`
	WorkId    int       `gorm:"index;not null" json:"work_id"`
	UserId    *int      `json:"user_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	Detail    *string   `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	User *User `gorm:"foreignKey:UserId" json:"user,omitempty"`
}

func (WorkActivity) TableName() string {
	return "work_activities"
}

// RecordWorkActivity appends one audit row. Failures are returned to the
// caller but should not abort the operation that produced them.
func RecordWorkActivity(ctx context.Context, workId int, userId *int, action string, detail *string) error {
	activity := WorkActivity{
		WorkId: workId,
		UserId: userId,
		Action: action,
		Detail: detail,
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(&activity).Error
}

func ListWorkActivities(ctx context.Context, workId int) ([]WorkActivity, error) {
	var activities []WorkActivity
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("User").Where("work_id = ?", workId).Order("id DESC").Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}
