package models

import (
	"context"
	"strconv"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"gorm.io/gorm"
	"time"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      *string   `gorm:"size:100;unique" json:"email"`
	Password   string    `gorm:"size:255" json:"-"`
	ExternalId *string   `gorm:"size:255;uniqueIndex" json:"external_id"`
	Color      string    `gorm:"size:20" json:"color"`
	SortOrder  int       `gorm:"not null;default:0" json:"sort_order"`
	IsAdmin    *bool     `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name       string  `json:"name" binding:"required"`
	Email      *string `json:"email"`
	Password   string  `json:"password"`
	ExternalId *string `json:"external_id"`
	Color      string  `json:"color"`
	SortOrder  int     `json:"sort_order"`
	IsAdmin    *bool   `json:"is_admin"`
}

/*
caches:
	User:$id
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + strconv.Itoa(user.ID))
}

// GetUserById loads a user, redis first then db.
func GetUserById(ctx context.Context, id int) (*User, error) {
	var user User
	key := "User:" + strconv.Itoa(id)
	exists, err := config.GetRedisObject(key, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := config.SetRedisObject(key, &user, 0); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserFromContext resolves the session user attached by the middleware.
func GetUserFromContext(ctx context.Context) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return GetUserById(ctx, userId)
}

// LoginUser is the reduced shape the login screen picker needs.
type LoginUser struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	HasPassword bool   `json:"has_password"`
}

func ListUsersForLogin(ctx context.Context) ([]LoginUser, error) {
	var users []User
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("sort_order, id").Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]LoginUser, 0, len(users))
	for _, user := range users {
		out = append(out, LoginUser{
			ID:          user.ID,
			Name:        user.Name,
			Color:       user.Color,
			HasPassword: user.Password != "",
		})
	}
	return out, nil
}

func ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	db := config.GetDB()
	if err := db.WithContext(ctx).Order("sort_order, id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
