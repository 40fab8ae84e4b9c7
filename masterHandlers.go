package main

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func listEquipmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var equipments []models.Equipment
		err := config.GetDB().WithContext(c.Request.Context()).Order("name").Find(&equipments).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load equipments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"equipments": equipments})
	}
}

// equipmentOptionsHandler returns the flattened tree for select boxes.
// exclude_id removes that equipment and its descendants, for edit forms.
func equipmentOptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		excludeId, _ := strconv.Atoi(c.Query("exclude_id"))
		options, err := models.EquipmentOptionsForSelect(c.Request.Context(), excludeId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load equipment options"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"options": options})
	}
}

// equipmentChildrenHandler returns direct children keyed by parent id,
// for cascading selects that load one level at a time.
func equipmentChildrenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		children, err := models.EquipmentChildrenByParentId(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load equipment tree"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"children": children})
	}
}

func equipmentDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
			return
		}
		ctx := c.Request.Context()

		equipment, err := models.GetEquipmentById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "equipment not found"})
			return
		}

		var children []models.Equipment
		_ = config.GetDB().WithContext(ctx).Where("parent_id = ?", id).Order("name").Find(&children).Error

		var partLinks []models.EquipmentPart
		_ = config.GetDB().WithContext(ctx).Where("equipment_id = ?", id).Find(&partLinks).Error

		c.JSON(http.StatusOK, gin.H{
			"equipment":  equipment,
			"children":   children,
			"part_links": partLinks,
		})
	}
}

type equipmentRequest struct {
	ParentId      *int       `json:"parent_id"`
	Name          string     `json:"name" binding:"required"`
	ModelNumber   *string    `json:"model_number"`
	Status        string     `json:"status"`
	InstalledAt   *time.Time `json:"installed_at"`
	Manufacturer  *string    `json:"manufacturer"`
	VendorContact *string    `json:"vendor_contact"`
	Note          *string    `json:"note"`
}

func createEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req equipmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		ctx := c.Request.Context()
		if req.ParentId != nil {
			if _, err := models.GetEquipmentById(ctx, *req.ParentId); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "parent equipment not found"})
				return
			}
		}

		equipment := models.Equipment{
			ParentId:      req.ParentId,
			Name:          strings.TrimSpace(req.Name),
			ModelNumber:   req.ModelNumber,
			Status:        req.Status,
			InstalledAt:   req.InstalledAt,
			Manufacturer:  req.Manufacturer,
			VendorContact: req.VendorContact,
			Note:          req.Note,
		}
		if err := config.GetDB().WithContext(ctx).Create(&equipment).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create equipment"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"equipment": equipment})
	}
}

func updateEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
			return
		}
		var req equipmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		ctx := c.Request.Context()
		equipment, err := models.GetEquipmentById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "equipment not found"})
			return
		}

		// A node cannot become a child of itself or of a descendant.
		if req.ParentId != nil {
			if *req.ParentId == id {
				c.JSON(http.StatusBadRequest, gin.H{"error": "equipment cannot be its own parent"})
				return
			}
			options, err := models.EquipmentOptionsForSelect(ctx, id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not validate parent"})
				return
			}
			allowed := false
			for _, option := range options {
				if option.ID == *req.ParentId {
					allowed = true
					break
				}
			}
			if !allowed {
				c.JSON(http.StatusBadRequest, gin.H{"error": "parent would create a cycle"})
				return
			}
		}

		updates := map[string]interface{}{
			"parent_id":      req.ParentId,
			"name":           strings.TrimSpace(req.Name),
			"model_number":   req.ModelNumber,
			"status":         req.Status,
			"installed_at":   req.InstalledAt,
			"manufacturer":   req.Manufacturer,
			"vendor_contact": req.VendorContact,
			"note":           req.Note,
		}
		if err := config.GetDB().WithContext(ctx).Model(equipment).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update equipment"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"equipment": equipment})
	}
}

func deleteEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
			return
		}
		ctx := c.Request.Context()
		db := config.GetDB()

		var childCount int64
		if err := db.WithContext(ctx).Model(&models.Equipment{}).Where("parent_id = ?", id).Count(&childCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check children"})
			return
		}
		if childCount > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "equipment has child equipments"})
			return
		}
		var workCount int64
		if err := db.WithContext(ctx).Model(&models.Work{}).Where("equipment_id = ?", id).Count(&workCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check works"})
			return
		}
		if workCount > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "equipment is referenced by works"})
			return
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("equipment_id = ?", id).Delete(&models.EquipmentPart{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Equipment{}, id).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete equipment"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// lookupMastersHandler bundles every lookup table the forms need in one
// response.
func lookupMastersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var statuses []models.WorkStatus
		var priorities []models.WorkPriority
		var purposes []models.WorkPurpose
		var costCategories []models.WorkCostCategory
		var repairTypes []models.RepairType
		var contentTags []models.WorkContentTag

		for _, dest := range []interface{}{&statuses, &priorities, &purposes, &costCategories, &repairTypes, &contentTags} {
			if err := models.ListActiveMaster(ctx, dest); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load masters"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"work_statuses":        statuses,
			"work_priorities":      priorities,
			"work_purposes":        purposes,
			"work_cost_categories": costCategories,
			"repair_types":         repairTypes,
			"work_content_tags":    contentTags,
		})
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewUser
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		if req.Email != nil && !utils.IsValidEmail(*req.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}

		user := models.User{
			Name:       strings.TrimSpace(req.Name),
			Email:      req.Email,
			ExternalId: req.ExternalId,
			Color:      req.Color,
			SortOrder:  req.SortOrder,
			IsAdmin:    req.IsAdmin,
		}
		if req.Password != "" {
			hashed, err := utils.HashPassword(req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
				return
			}
			user.Password = string(hashed)
		}

		if err := config.GetDB().WithContext(c.Request.Context()).Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

func updateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var req models.NewUser
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		if req.Email != nil && !utils.IsValidEmail(*req.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}

		ctx := c.Request.Context()
		user, err := models.GetUserById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		updates := map[string]interface{}{
			"name":        strings.TrimSpace(req.Name),
			"email":       req.Email,
			"external_id": req.ExternalId,
			"color":       req.Color,
			"sort_order":  req.SortOrder,
		}
		if req.IsAdmin != nil {
			updates["is_admin"] = *req.IsAdmin
		}
		if req.Password != "" {
			hashed, err := utils.HashPassword(req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
				return
			}
			updates["password"] = string(hashed)
		}

		if err := config.GetDB().WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update user"})
			return
		}
		if err := user.RemoveInstanceRedis(); err != nil {
			config.LogError(config.GetLogger(), "masterHandlers", "updateUserHandler", "invalidate cache", user.ID, err)
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

func deleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		ctx := c.Request.Context()

		sessionUserId, _ := utils.GetUserIdFromContext(ctx)
		if sessionUserId == id {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete the logged in user"})
			return
		}

		user, err := models.GetUserById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if err := config.GetDB().WithContext(ctx).Delete(&models.User{}, id).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete user"})
			return
		}
		if err := user.RemoveInstanceRedis(); err != nil {
			config.LogError(config.GetLogger(), "masterHandlers", "deleteUserHandler", "invalidate cache", id, err)
		}
		c.Status(http.StatusNoContent)
	}
}

// remoteSearchUsersHandler searches the central user directory and
// flags accounts that are already linked to a local user.
func remoteSearchUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		params := url.Values{}
		if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
			params.Set("keyword", keyword)
		}
		if page := strings.TrimSpace(c.Query("page")); page != "" {
			params.Set("page", page)
		}
		perPage := strings.TrimSpace(c.Query("per_page"))
		if perPage == "" {
			perPage = "20"
		}
		params.Set("per_page", perPage)

		remoteUsers, err := stockClient.SearchUsers(ctx, params)
		if err != nil {
			config.LogError(config.GetLogger(), "masterHandlers", "remoteSearchUsersHandler", "search users", params.Encode(), err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "user search is unavailable"})
			return
		}

		var linkedIds []string
		if err := config.GetDB().WithContext(ctx).Model(&models.User{}).
			Where("external_id IS NOT NULL").
			Pluck("external_id", &linkedIds).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load linked users"})
			return
		}
		linked := make(map[string]bool, len(linkedIds))
		for _, id := range linkedIds {
			linked[id] = true
		}

		type remoteUserView struct {
			Id            string `json:"id"`
			Name          string `json:"name"`
			Email         string `json:"email"`
			AlreadyLinked bool   `json:"already_linked"`
		}
		views := make([]remoteUserView, 0, len(remoteUsers))
		for _, remote := range remoteUsers {
			id := remote.Id.String()
			views = append(views, remoteUserView{
				Id:            id,
				Name:          remote.Name,
				Email:         remote.Email,
				AlreadyLinked: linked[id],
			})
		}
		c.JSON(http.StatusOK, gin.H{"users": views})
	}
}

type linkUserExternalRequest struct {
	ExternalId *string `json:"external_id"`
}

// linkUserExternalHandler ties a local user to a directory account, or
// clears the link when external_id comes in null or blank.
func linkUserExternalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var req linkUserExternalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ctx := c.Request.Context()
		user, err := models.GetUserById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		externalId := utils.TrimToNil(utils.DereferencePtr(req.ExternalId))
		if externalId != nil {
			var count int64
			if err := config.GetDB().WithContext(ctx).Model(&models.User{}).
				Where("external_id = ? AND id != ?", *externalId, id).
				Count(&count).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check external id"})
				return
			}
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "external id already linked to another user"})
				return
			}
		}

		if err := config.GetDB().WithContext(ctx).Model(&models.User{}).
			Where("id = ?", id).
			Update("external_id", externalId).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update user"})
			return
		}
		if err := user.RemoveInstanceRedis(); err != nil {
			config.LogError(config.GetLogger(), "masterHandlers", "linkUserExternalHandler", "invalidate cache", id, err)
		}

		updated, err := models.GetUserById(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reload user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": updated})
	}
}

// dashboardHandler returns the counts the landing screen shows.
func dashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		var openWorks, totalWorks, equipments, parts int64
		if err := db.WithContext(ctx).Model(&models.Work{}).Where("completed_at IS NULL").Count(&openWorks).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load dashboard"})
			return
		}
		_ = db.WithContext(ctx).Model(&models.Work{}).Count(&totalWorks).Error
		_ = db.WithContext(ctx).Model(&models.Equipment{}).Count(&equipments).Error
		_ = db.WithContext(ctx).Model(&models.Part{}).Count(&parts).Error

		var recentActivities []models.WorkActivity
		_ = db.WithContext(ctx).Preload("User").Order("id DESC").Limit(10).Find(&recentActivities).Error

		c.JSON(http.StatusOK, gin.H{
			"open_works":        openWorks,
			"total_works":       totalWorks,
			"equipment_count":   equipments,
			"part_count":        parts,
			"recent_activities": recentActivities,
		})
	}
}
