package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	UserId   int    `json:"user_id" binding:"required"`
	Password string `json:"password"`
}

func sessionLifespan() time.Duration {
	hours := 24
	if v := os.Getenv("TOKEN_HOUR_LIFESPAN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	return time.Duration(hours) * time.Hour
}

// loginUserListHandler backs the login screen user picker.
func loginUserListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.ListUsersForLogin(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		// The redis-cached user has no password hash, so credentials are
		// always checked against the database row.
		var user models.User
		if err := config.GetDB().WithContext(c.Request.Context()).
			Where("id = ?", req.UserId).Take(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
			return
		}

		// Users without a stored password log in by selection alone.
		if user.Password != "" {
			if err := utils.ComparePassword(user.Password, req.Password); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
				return
			}
		}

		isAdmin := user.IsAdmin != nil && *user.IsAdmin
		token, err := utils.JwtGenerate(user.ID, isAdmin)
		if err != nil {
			config.LogError(logger, "authHandlers", "loginHandler", "generate token", user.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
			return
		}

		if err := config.SetRedisValue("Token:"+token, strconv.Itoa(user.ID), sessionLifespan()); err != nil {
			config.LogError(logger, "authHandlers", "loginHandler", "store session", user.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  user,
		})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.Status(http.StatusNoContent)
			return
		}
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			config.LogError(config.GetLogger(), "authHandlers", "logoutHandler", "remove session", nil, err)
		}
		c.Status(http.StatusNoContent)
	}
}
