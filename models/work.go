package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"gorm.io/gorm"
)

type Work struct {
	ID             int            `gorm:"primary_key" json:"id"`
	Title          string         `gorm:"size:255;not null" json:"title" binding:"required"`
	Description    *string        `gorm:"type:text" json:"description"`
	EquipmentId    *int           `gorm:"index" json:"equipment_id"`
	WorkStatusId   *int           `gorm:"index" json:"work_status_id"`
	WorkPriorityId *int           `json:"work_priority_id"`
	WorkPurposeId  *int           `json:"work_purpose_id"`
	RepairTypeId   *int           `json:"repair_type_id"`
	AssigneeId     *int           `gorm:"index" json:"assignee_id"`
	ReporterId     *int           `json:"reporter_id"`
	ScheduledAt    *time.Time     `json:"scheduled_at"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	DueDate        *time.Time     `json:"due_date"`
	Note           *string        `gorm:"type:text" json:"note"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Equipment *Equipment `gorm:"foreignKey:EquipmentId" json:"equipment,omitempty"`
	Assignee  *User      `gorm:"foreignKey:AssigneeId" json:"assignee,omitempty"`
	Reporter  *User      `gorm:"foreignKey:ReporterId" json:"reporter,omitempty"`
}

func GetWorkById(ctx context.Context, id int) (*Work, error) {
	var work Work
	db := config.GetDB()
	err := db.WithContext(ctx).
		Preload("Equipment").
		Preload("Assignee").
		Preload("Reporter").
		Where("id = ?", id).
		Take(&work).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &work, nil
}

type WorkListFilter struct {
	EquipmentId  int
	WorkStatusId int
	AssigneeId   int
	Keyword      string
	Page         int
	PerPage      int
}

// ListWorks returns one page of works plus the unpaged total.
func ListWorks(ctx context.Context, filter WorkListFilter) ([]Work, int64, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Model(&Work{})
	if filter.EquipmentId != 0 {
		query = query.Where("equipment_id = ?", filter.EquipmentId)
	}
	if filter.WorkStatusId != 0 {
		query = query.Where("work_status_id = ?", filter.WorkStatusId)
	}
	if filter.AssigneeId != 0 {
		query = query.Where("assignee_id = ?", filter.AssigneeId)
	}
	if filter.Keyword != "" {
		keyword := "%" + filter.Keyword + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", keyword, keyword)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 || perPage > config.SearchLimit {
		perPage = config.SearchLimit
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var works []Work
	err := query.
		Preload("Equipment").
		Preload("Assignee").
		Order("id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&works).Error
	if err != nil {
		return nil, 0, err
	}
	return works, total, nil
}
