package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
)

// ApiRequestLog keeps a trace of requests proxied through the API test
// console, one row per call.
type ApiRequestLog struct {
	ID           int       `gorm:"primary_key" json:"id"`
	UserId       *int      `json:"user_id"`
	Method       string    `gorm:"size:10;not null" json:"method"`
	Path         string    `gorm:"size:500;not null" json:"path"`
	Query        *string   `gorm:"type:text" json:"query"`
	RequestBody  *string   `gorm:"type:text" json:"request_body"`
	StatusCode   int       `json:"status_code"`
	ResponseBody *string   `gorm:"type:mediumtext" json:"response_body"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	User *User `gorm:"foreignKey:UserId" json:"user,omitempty"`
}

func (ApiRequestLog) TableName() string {
	return "api_request_logs"
}

func CreateApiRequestLog(ctx context.Context, log *ApiRequestLog) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(log).Error
}

func ListApiRequestLogs(ctx context.Context, limit int) ([]ApiRequestLog, error) {
	if limit <= 0 || limit > config.SearchLimit {
		limit = config.SearchLimit
	}
	var logs []ApiRequestLog
	db := config.GetDB()
	err := db.WithContext(ctx).Preload("User").Order("id DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
