package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/conservation"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// obtainWorkLock takes a best-effort lock around used-part mutations of
// one work. A nil return means no lock; the mutation proceeds anyway and
// relies on the database for consistency.
func obtainWorkLock(c *gin.Context, workId int) *redislock.Lock {
	logger := config.GetLogger()
	redisLock := config.GetRedisLock()
	if redisLock == nil {
		logger.WithFields(logrus.Fields{
			"field":   "obtainWorkLock",
			"work_id": workId,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return nil
	}
	lock, err := redisLock.Obtain(c.Request.Context(), fmt.Sprintf("work:%d", workId), 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		logger.WithFields(logrus.Fields{
			"field":   "obtainWorkLock",
			"work_id": workId,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return nil
	} else if err != nil {
		logger.WithFields(logrus.Fields{
			"field":   "obtainWorkLock",
			"work_id": workId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return nil
	}
	return lock
}

func releaseWorkLock(c *gin.Context, lock *redislock.Lock, workId int) {
	if lock == nil {
		return
	}
	if err := lock.Release(c.Request.Context()); err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"field":   "releaseWorkLock",
			"work_id": workId,
		}).Warn("failed to release redis lock: " + err.Error())
	}
}

// adjustmentItemsForUsedParts maps used-part rows to reconciliation
// items. Parts without an external id produce items the reconciler
// filters out.
func adjustmentItemsForUsedParts(usedParts []models.WorkUsedPart) []conservation.AdjustmentItem {
	items := make([]conservation.AdjustmentItem, 0, len(usedParts))
	for _, usedPart := range usedParts {
		externalId := ""
		if usedPart.Part != nil && usedPart.Part.ExternalId != nil {
			externalId = *usedPart.Part.ExternalId
		}
		items = append(items, conservation.AdjustmentItem{
			PartId:     usedPart.PartId,
			ExternalId: externalId,
			Quantity:   usedPart.Quantity,
		})
	}
	return items
}

func recordActivity(c *gin.Context, workId int, action string, detail *string) {
	ctx := c.Request.Context()
	var userId *int
	if id, ok := utils.GetUserIdFromContext(ctx); ok {
		userId = &id
	}
	if err := models.RecordWorkActivity(ctx, workId, userId, action, detail); err != nil {
		config.LogError(config.GetLogger(), "workHandlers", "recordActivity", action, workId, err)
	}
}

func listWorksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.WorkListFilter{
			Keyword: strings.TrimSpace(c.Query("q")),
		}
		filter.EquipmentId, _ = strconv.Atoi(c.Query("equipment_id"))
		filter.WorkStatusId, _ = strconv.Atoi(c.Query("work_status_id"))
		filter.AssigneeId, _ = strconv.Atoi(c.Query("assignee_id"))
		filter.Page, _ = strconv.Atoi(c.Query("page"))
		filter.PerPage, _ = strconv.Atoi(c.Query("per_page"))

		works, total, err := models.ListWorks(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load works"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"works": works, "total": total})
	}
}

type usedPartInput struct {
	PartId   int             `json:"part_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	Note     *string         `json:"note"`
}

type costInput struct {
	WorkCostCategoryId *int            `json:"work_cost_category_id"`
	Name               string          `json:"name" binding:"required"`
	Amount             decimal.Decimal `json:"amount"`
	IncurredOn         *time.Time      `json:"incurred_on"`
	Note               *string         `json:"note"`
}

type createWorkRequest struct {
	Title          string          `json:"title" binding:"required"`
	Description    *string         `json:"description"`
	EquipmentId    *int            `json:"equipment_id"`
	WorkStatusId   *int            `json:"work_status_id"`
	WorkPriorityId *int            `json:"work_priority_id"`
	WorkPurposeId  *int            `json:"work_purpose_id"`
	RepairTypeId   *int            `json:"repair_type_id"`
	AssigneeId     *int            `json:"assignee_id"`
	ScheduledAt    *time.Time      `json:"scheduled_at"`
	DueDate        *time.Time      `json:"due_date"`
	Note           *string         `json:"note"`
	UsedParts      []usedPartInput `json:"used_parts"`
	Costs          []costInput     `json:"costs"`
}

func createWorkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWorkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}

		ctx := c.Request.Context()
		var reporterId *int
		if id, ok := utils.GetUserIdFromContext(ctx); ok {
			reporterId = &id
		}

		work := models.Work{
			Title:          strings.TrimSpace(req.Title),
			Description:    req.Description,
			EquipmentId:    req.EquipmentId,
			WorkStatusId:   req.WorkStatusId,
			WorkPriorityId: req.WorkPriorityId,
			WorkPurposeId:  req.WorkPurposeId,
			RepairTypeId:   req.RepairTypeId,
			AssigneeId:     req.AssigneeId,
			ReporterId:     reporterId,
			ScheduledAt:    req.ScheduledAt,
			DueDate:        req.DueDate,
			Note:           req.Note,
		}

		db := config.GetDB()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&work).Error; err != nil {
				return err
			}
			for _, input := range req.UsedParts {
				usedPart := models.WorkUsedPart{
					WorkId:   work.ID,
					PartId:   input.PartId,
					Quantity: input.Quantity,
					Note:     input.Note,
				}
				if err := tx.Create(&usedPart).Error; err != nil {
					return err
				}
			}
			for _, input := range req.Costs {
				cost := models.WorkCost{
					WorkId:             work.ID,
					WorkCostCategoryId: input.WorkCostCategoryId,
					Name:               strings.TrimSpace(input.Name),
					Amount:             input.Amount,
					IncurredOn:         input.IncurredOn,
					Note:               input.Note,
				}
				if err := tx.Create(&cost).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			config.LogError(config.GetLogger(), "workHandlers", "createWorkHandler", "create work", req.Title, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create work"})
			return
		}

		recordActivity(c, work.ID, "created", nil)

		// Saving the work record never waits on the remote side; any
		// reconciliation problem comes back as an advisory message.
		response := gin.H{"work": work}
		if len(req.UsedParts) > 0 {
			usedParts, err := models.ListWorkUsedParts(ctx, work.ID)
			if err == nil {
				outcome := reconciler.Reconcile(ctx, conservation.DirectionConsume, adjustmentItemsForUsedParts(usedParts))
				response["stock_reconciliation"] = outcome
				if outcome.Message != "" {
					response["message"] = outcome.Message
					recordActivity(c, work.ID, "stock_adjustment", &outcome.Message)
				}
			}
		}

		c.JSON(http.StatusCreated, response)
	}
}

func workDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		ctx := c.Request.Context()

		work, err := models.GetWorkById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}

		usedParts, err := models.ListWorkUsedParts(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load used parts"})
			return
		}

		// One batched remote lookup resolves names and prices for every
		// used part on the work.
		parts := make([]models.Part, 0, len(usedParts))
		for _, usedPart := range usedParts {
			if usedPart.Part != nil {
				parts = append(parts, *usedPart.Part)
			}
		}
		userId, _ := utils.GetUserIdFromContext(ctx)
		resolved, _ := displayNames.ResolveParts(ctx, userId, parts)
		resolvedByPartId := make(map[int]conservation.ResolvedPart, len(resolved))
		for _, part := range resolved {
			resolvedByPartId[part.ID] = part
		}

		type usedPartView struct {
			models.WorkUsedPart
			ResolvedName string `json:"resolved_name"`
		}
		usedPartViews := make([]usedPartView, 0, len(usedParts))
		for _, usedPart := range usedParts {
			view := usedPartView{WorkUsedPart: usedPart}
			if part, ok := resolvedByPartId[usedPart.PartId]; ok {
				view.ResolvedName = part.DisplayName
			}
			usedPartViews = append(usedPartViews, view)
		}

		costs, _ := models.ListWorkCosts(ctx, id)
		costTotal, _ := models.SumWorkCosts(ctx, id)
		contents, _ := models.ListWorkContents(ctx, id)
		attachments, _ := models.ListWorkAttachments(ctx, id)

		c.JSON(http.StatusOK, gin.H{
			"work":        work,
			"used_parts":  usedPartViews,
			"costs":       costs,
			"cost_total":  costTotal,
			"contents":    contents,
			"attachments": attachments,
		})
	}
}

type updateWorkRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    *string    `json:"description"`
	EquipmentId    *int       `json:"equipment_id"`
	WorkStatusId   *int       `json:"work_status_id"`
	WorkPriorityId *int       `json:"work_priority_id"`
	WorkPurposeId  *int       `json:"work_purpose_id"`
	RepairTypeId   *int       `json:"repair_type_id"`
	AssigneeId     *int       `json:"assignee_id"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	DueDate        *time.Time `json:"due_date"`
	Note           *string    `json:"note"`
}

func updateWorkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		var req updateWorkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}

		ctx := c.Request.Context()
		work, err := models.GetWorkById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}

		updates := map[string]interface{}{
			"title":            strings.TrimSpace(req.Title),
			"description":      req.Description,
			"equipment_id":     req.EquipmentId,
			"work_status_id":   req.WorkStatusId,
			"work_priority_id": req.WorkPriorityId,
			"work_purpose_id":  req.WorkPurposeId,
			"repair_type_id":   req.RepairTypeId,
			"assignee_id":      req.AssigneeId,
			"scheduled_at":     req.ScheduledAt,
			"started_at":       req.StartedAt,
			"completed_at":     req.CompletedAt,
			"due_date":         req.DueDate,
			"note":             req.Note,
		}
		if err := config.GetDB().WithContext(ctx).Model(work).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update work"})
			return
		}

		recordActivity(c, work.ID, "updated", nil)
		c.JSON(http.StatusOK, gin.H{"work": work})
	}
}

func deleteWorkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		ctx := c.Request.Context()

		if _, err := models.GetWorkById(ctx, id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}
		if err := config.GetDB().WithContext(ctx).Delete(&models.Work{}, id).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete work"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// addWorkUsedPartHandler registers part usage on a work and deducts the
// quantity from remote stock.
func addWorkUsedPartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		var req usedPartInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "part_id and quantity are required"})
			return
		}
		if !req.Quantity.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be positive"})
			return
		}

		ctx := c.Request.Context()
		if _, err := models.GetWorkById(ctx, workId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}
		part, err := models.GetPartById(ctx, req.PartId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		lock := obtainWorkLock(c, workId)
		defer releaseWorkLock(c, lock, workId)

		usedPart := models.WorkUsedPart{
			WorkId:   workId,
			PartId:   req.PartId,
			Quantity: req.Quantity,
			Note:     req.Note,
		}
		if err := config.GetDB().WithContext(ctx).Create(&usedPart).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add used part"})
			return
		}
		usedPart.Part = part

		detail := fmt.Sprintf("part %d x %s", req.PartId, req.Quantity.String())
		recordActivity(c, workId, "part_used", &detail)

		outcome := reconciler.Reconcile(ctx, conservation.DirectionConsume,
			adjustmentItemsForUsedParts([]models.WorkUsedPart{usedPart}))
		response := gin.H{
			"used_part":            usedPart,
			"stock_reconciliation": outcome,
		}
		if outcome.Message != "" {
			response["message"] = outcome.Message
			recordActivity(c, workId, "stock_adjustment", &outcome.Message)
		}
		c.JSON(http.StatusCreated, response)
	}
}

// removeWorkUsedPartHandler returns the quantity to remote stock, then
// removes the usage row.
func removeWorkUsedPartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		usedPartId, err := strconv.Atoi(c.Param("usedPartId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid used part id"})
			return
		}

		ctx := c.Request.Context()
		usedPart, err := models.GetWorkUsedPartById(ctx, usedPartId)
		if err != nil || usedPart.WorkId != workId {
			c.JSON(http.StatusNotFound, gin.H{"error": "used part not found"})
			return
		}

		lock := obtainWorkLock(c, workId)
		defer releaseWorkLock(c, lock, workId)

		outcome := reconciler.Reconcile(ctx, conservation.DirectionReturn,
			adjustmentItemsForUsedParts([]models.WorkUsedPart{*usedPart}))

		if err := config.GetDB().WithContext(ctx).Delete(&models.WorkUsedPart{}, usedPartId).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove used part"})
			return
		}

		detail := fmt.Sprintf("part %d x %s", usedPart.PartId, usedPart.Quantity.String())
		recordActivity(c, workId, "part_removed", &detail)

		response := gin.H{"stock_reconciliation": outcome}
		if outcome.Message != "" {
			response["message"] = outcome.Message
			recordActivity(c, workId, "stock_adjustment", &outcome.Message)
		}
		c.JSON(http.StatusOK, response)
	}
}

func listWorkCostsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		costs, err := models.ListWorkCosts(c.Request.Context(), workId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load costs"})
			return
		}
		total, _ := models.SumWorkCosts(c.Request.Context(), workId)
		c.JSON(http.StatusOK, gin.H{"costs": costs, "total": total})
	}
}

func addWorkCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		var req costInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		ctx := c.Request.Context()
		if _, err := models.GetWorkById(ctx, workId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}

		cost := models.WorkCost{
			WorkId:             workId,
			WorkCostCategoryId: req.WorkCostCategoryId,
			Name:               strings.TrimSpace(req.Name),
			Amount:             req.Amount,
			IncurredOn:         req.IncurredOn,
			Note:               req.Note,
		}
		if err := config.GetDB().WithContext(ctx).Create(&cost).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add cost"})
			return
		}
		recordActivity(c, workId, "cost_added", &cost.Name)
		c.JSON(http.StatusCreated, gin.H{"cost": cost})
	}
}

func removeWorkCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		costId, err := strconv.Atoi(c.Param("costId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cost id"})
			return
		}

		err = config.GetDB().WithContext(c.Request.Context()).
			Where("id = ? AND work_id = ?", costId, workId).
			Delete(&models.WorkCost{}).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove cost"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listWorkContentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		contents, err := models.ListWorkContents(c.Request.Context(), workId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load contents"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"contents": contents})
	}
}

type contentInput struct {
	WorkContentTagId *int       `json:"work_content_tag_id"`
	Body             string     `json:"body" binding:"required"`
	WorkedOn         *time.Time `json:"worked_on"`
	WorkedMinutes    *int       `json:"worked_minutes"`
}

func addWorkContentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		var req contentInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
			return
		}

		ctx := c.Request.Context()
		if _, err := models.GetWorkById(ctx, workId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
			return
		}

		var userId *int
		if id, ok := utils.GetUserIdFromContext(ctx); ok {
			userId = &id
		}
		content := models.WorkContent{
			WorkId:           workId,
			WorkContentTagId: req.WorkContentTagId,
			Body:             req.Body,
			WorkedOn:         req.WorkedOn,
			WorkedMinutes:    req.WorkedMinutes,
			UserId:           userId,
		}
		if err := config.GetDB().WithContext(ctx).Create(&content).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add content"})
			return
		}
		recordActivity(c, workId, "content_added", nil)
		c.JSON(http.StatusCreated, gin.H{"content": content})
	}
}

func listWorkActivitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		workId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid work id"})
			return
		}
		activities, err := models.ListWorkActivities(c.Request.Context(), workId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load activities"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"activities": activities})
	}
}
