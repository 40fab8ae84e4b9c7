package main

import (
	"fmt"
	"net/http"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// exportPartsHandler streams the parts master as an xlsx file, names
// resolved for the session user.
func exportPartsHandler() gin.HandlerFunc {
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

		f := excelize.NewFile()
		sheetName := "Parts"
		index, err := f.NewSheet(sheetName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create sheet"})
			return
		}
		f.SetActiveSheet(index)
		f.DeleteSheet("Sheet1")

		f.SetCellValue(sheetName, "A1", "PartNo")
		f.SetCellValue(sheetName, "B1", "Name")
		f.SetCellValue(sheetName, "C1", "ExternalId")
		f.SetCellValue(sheetName, "D1", "Memo")

		for i, part := range resolved {
			row := fmt.Sprint(i + 2)
			f.SetCellValue(sheetName, "A"+row, part.PartNo)
			f.SetCellValue(sheetName, "B"+row, part.DisplayName)
			f.SetCellValue(sheetName, "C"+row, utils.DereferencePtr(part.ExternalId))
			f.SetCellValue(sheetName, "D"+row, utils.DereferencePtr(part.Memo))
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=parts.xlsx")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "exportHandlers", "exportPartsHandler", "write xlsx", nil, err)
		}
	}
}
