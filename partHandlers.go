package main

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/conservation"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// resolveAssetURL turns a relative image path from the remote API into
// an absolute URL against the Conservation site root.
func resolveAssetURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return config.GetConservationSiteRoot() + "/" + strings.TrimLeft(path, "/")
}

// remoteStockView is the normalized search-result row the parts screen
// consumes.
type remoteStockView struct {
	Id                string           `json:"id"`
	Name              string           `json:"name"`
	SName             string           `json:"s_name"`
	StockNo           string           `json:"stock_no"`
	JanCode           string           `json:"jan_code"`
	Price             *decimal.Decimal `json:"price"`
	SupplierName      string           `json:"supplier_name"`
	ThumbnailUrl      string           `json:"thumbnail_url"`
	TotalQuantity     decimal.Decimal  `json:"total_quantity"`
	AlreadyRegistered bool             `json:"already_registered"`
}

func normalizeStock(record conservation.StockRecord, registered map[string]bool) remoteStockView {
	view := remoteStockView{
		Id:      record.Id.String(),
		Name:    record.Name,
		SName:   record.SName,
		StockNo: record.StockNo,
		JanCode: record.JanCode,
		Price:   record.Price,
	}

	// Main supplier wins; otherwise the first listed one.
	var supplier *conservation.StockSupplier
	for i := range record.StockSuppliers {
		if record.StockSuppliers[i].MainFlg == 1 {
			supplier = &record.StockSuppliers[i]
			break
		}
	}
	if supplier == nil && len(record.StockSuppliers) > 0 {
		supplier = &record.StockSuppliers[0]
	}
	if supplier != nil && supplier.Supplier != nil {
		view.SupplierName = supplier.Supplier.Name
	}

	thumbnail := ""
	if len(record.StockImages) > 0 {
		thumbnail = record.StockImages[0].FirstPath()
	}
	if thumbnail == "" {
		thumbnail = record.ImgPath
	}
	view.ThumbnailUrl = resolveAssetURL(thumbnail)

	total := decimal.Zero
	for _, slot := range record.StockStorages {
		if slot.Quantity != nil {
			total = total.Add(*slot.Quantity)
		}
	}
	view.TotalQuantity = total

	view.AlreadyRegistered = registered[view.Id]
	return view
}

func listPartsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		parts, err := models.ListPartsByPartNo(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load parts"})
			return
		}

		userId, _ := utils.GetUserIdFromContext(ctx)
		resolved, err := displayNames.ResolveParts(ctx, userId, parts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve part names"})
			return
		}

		if q := strings.TrimSpace(c.Query("q")); q != "" {
			filtered := make([]conservation.ResolvedPart, 0, len(resolved))
			lower := strings.ToLower(q)
			for _, part := range resolved {
				if strings.Contains(strings.ToLower(part.DisplayName), lower) ||
					strings.Contains(strings.ToLower(part.PartNo), lower) {
					filtered = append(filtered, part)
				}
			}
			resolved = filtered
		}

		c.JSON(http.StatusOK, gin.H{"parts": resolved})
	}
}

type createPartRequest struct {
	PartNo     string  `json:"part_no" binding:"required"`
	Name       string  `json:"name"`
	Memo       *string `json:"memo"`
	ExternalId *string `json:"external_id"`
}

func createPartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "part_no is required"})
			return
		}

		ctx := c.Request.Context()
		if req.ExternalId != nil {
			externalId := strings.TrimSpace(*req.ExternalId)
			if externalId == "" {
				req.ExternalId = nil
			} else {
				exists, err := models.PartExternalIdExists(ctx, externalId)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check external id"})
					return
				}
				if exists {
					c.JSON(http.StatusConflict, gin.H{"error": "external id already registered"})
					return
				}
				req.ExternalId = &externalId
			}
		}

		part := models.Part{
			PartNo:     strings.TrimSpace(req.PartNo),
			Name:       strings.TrimSpace(req.Name),
			Memo:       req.Memo,
			ExternalId: req.ExternalId,
		}
		if err := config.GetDB().WithContext(ctx).Create(&part).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create part"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"part": part})
	}
}

func remoteSearchPartsHandler() gin.HandlerFunc {
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

		records, err := stockClient.SearchStocks(ctx, params)
		if err != nil {
			config.LogError(config.GetLogger(), "partHandlers", "remoteSearchPartsHandler", "search stocks", params.Encode(), err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "stock search is unavailable"})
			return
		}

		registeredIds, err := models.ListRegisteredExternalIds(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load registered parts"})
			return
		}
		registered := make(map[string]bool, len(registeredIds))
		for _, id := range registeredIds {
			registered[id] = true
		}

		views := make([]remoteStockView, 0, len(records))
		for _, record := range records {
			views = append(views, normalizeStock(record, registered))
		}
		c.JSON(http.StatusOK, gin.H{"stocks": views})
	}
}

type registerExternalPartRequest struct {
	ExternalId string `json:"external_id" binding:"required"`
}

// registerExternalPartHandler creates a local part from a remote stock
// record so it can be used on works and overridden per user.
func registerExternalPartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerExternalPartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external_id is required"})
			return
		}
		externalId := strings.TrimSpace(req.ExternalId)
		ctx := c.Request.Context()

		exists, err := models.PartExternalIdExists(ctx, externalId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check external id"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "external id already registered"})
			return
		}

		record, err := stockClient.FetchStock(ctx, externalId)
		if err != nil {
			config.LogError(config.GetLogger(), "partHandlers", "registerExternalPartHandler", "fetch stock", externalId, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "stock lookup failed"})
			return
		}

		partNo := record.StockNo
		if partNo == "" {
			partNo = "EXT-" + externalId
		}
		part := models.Part{
			ExternalId: &externalId,
			PartNo:     partNo,
			Name:       record.Name,
		}
		if err := config.GetDB().WithContext(ctx).Create(&part).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create part"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"part": part})
	}
}

func partDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		ctx := c.Request.Context()

		part, err := models.GetPartById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		userId, _ := utils.GetUserIdFromContext(ctx)
		resolved, err := displayNames.ResolvePart(ctx, userId, *part)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve part name"})
			return
		}

		response := gin.H{"part": resolved}

		if part.ExternalId != nil && strings.TrimSpace(*part.ExternalId) != "" {
			record, err := stockClient.FetchStock(ctx, strings.TrimSpace(*part.ExternalId))
			if err != nil {
				config.LogError(config.GetLogger(), "partHandlers", "partDetailHandler", "fetch stock", *part.ExternalId, err)
				response["stock"] = nil
				response["stock_available"] = false
			} else {
				response["stock"] = normalizeStock(*record, map[string]bool{record.Id.String(): true})
				response["stock_available"] = true
			}
		}

		var links []models.EquipmentPart
		if err := config.GetDB().WithContext(ctx).Where("part_id = ?", id).Find(&links).Error; err == nil {
			response["equipment_links"] = links
		}

		c.JSON(http.StatusOK, response)
	}
}

type updatePartRequest struct {
	PartNo string  `json:"part_no" binding:"required"`
	Name   string  `json:"name"`
	Memo   *string `json:"memo"`
}

func updatePartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		var req updatePartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "part_no is required"})
			return
		}

		ctx := c.Request.Context()
		part, err := models.GetPartById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		updates := map[string]interface{}{
			"part_no": strings.TrimSpace(req.PartNo),
			"name":    strings.TrimSpace(req.Name),
			"memo":    req.Memo,
		}
		if err := config.GetDB().WithContext(ctx).Model(part).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update part"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"part": part})
	}
}

func deletePartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		ctx := c.Request.Context()

		if _, err := models.GetPartById(ctx, id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		var usedCount int64
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&models.WorkUsedPart{}).Where("part_id = ?", id).Count(&usedCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check part usage"})
			return
		}
		if usedCount > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "part is referenced by work records"})
			return
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("part_id = ?", id).Delete(&models.PartUserDisplayName{}).Error; err != nil {
				return err
			}
			if err := tx.Where("part_id = ?", id).Delete(&models.EquipmentPart{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Part{}, id).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete part"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type displayNameRequest struct {
	DisplayName  string `json:"display_name"`
	DisplaySName string `json:"display_s_name"`
}

// updatePartDisplayNameHandler stores the session user's naming for one
// part. Blank name and short name remove the override.
func updatePartDisplayNameHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		var req displayNameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		userId, ok := utils.GetUserIdFromContext(ctx)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		part, err := models.GetPartById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		err = models.UpsertPartUserDisplayName(ctx, part.ID, userId,
			utils.TrimToNil(req.DisplayName), utils.TrimToNil(req.DisplaySName))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save display name"})
			return
		}

		resolved, err := displayNames.ResolvePart(ctx, userId, *part)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve part name"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"part": resolved})
	}
}

type memoRequest struct {
	Memo string `json:"memo"`
}

func updatePartMemoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		var req memoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		part, err := models.GetPartById(ctx, id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}

		if err := config.GetDB().WithContext(ctx).Model(part).
			Update("memo", utils.TrimToNil(req.Memo)).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update memo"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"part": part})
	}
}

type attachEquipmentRequest struct {
	EquipmentId int     `json:"equipment_id" binding:"required"`
	Note        *string `json:"note"`
}

func attachPartEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		var req attachEquipmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "equipment_id is required"})
			return
		}

		ctx := c.Request.Context()
		if _, err := models.GetPartById(ctx, partId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "part not found"})
			return
		}
		if _, err := models.GetEquipmentById(ctx, req.EquipmentId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "equipment not found"})
			return
		}

		link := models.EquipmentPart{
			EquipmentId: req.EquipmentId,
			PartId:      partId,
			Note:        req.Note,
		}
		if err := config.GetDB().WithContext(ctx).Save(&link).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not attach equipment"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"link": link})
	}
}

func detachPartEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partId, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part id"})
			return
		}
		equipmentId, err := strconv.Atoi(c.Param("equipmentId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
			return
		}

		err = config.GetDB().WithContext(c.Request.Context()).
			Where("part_id = ? AND equipment_id = ?", partId, equipmentId).
			Delete(&models.EquipmentPart{}).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not detach equipment"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
