package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/gin-gonic/gin"
)

type apiConsoleRequest struct {
	Method string            `json:"method" binding:"required"`
	Path   string            `json:"path" binding:"required"`
	Query  map[string]string `json:"query"`
	Body   json.RawMessage   `json:"body"`
}

var consoleMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// apiConsoleRequestHandler proxies one call to the Conservation API and
// records it. Admin tooling for poking the remote side from the app.
func apiConsoleRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req apiConsoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "method and path are required"})
			return
		}
		method := strings.ToUpper(strings.TrimSpace(req.Method))
		if !consoleMethods[method] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported method"})
			return
		}

		params := url.Values{}
		for key, value := range req.Query {
			params.Set(key, value)
		}

		ctx := c.Request.Context()
		started := time.Now()
		status, body, err := stockClient.Raw(ctx, method, req.Path, params, req.Body)
		elapsed := time.Since(started)

		var userId *int
		if id, ok := utils.GetUserIdFromContext(ctx); ok {
			userId = &id
		}
		logRow := models.ApiRequestLog{
			UserId:     userId,
			Method:     method,
			Path:       req.Path,
			DurationMs: elapsed.Milliseconds(),
		}
		if encoded := params.Encode(); encoded != "" {
			logRow.Query = &encoded
		}
		if len(req.Body) > 0 {
			requestBody := string(req.Body)
			logRow.RequestBody = &requestBody
		}

		if err != nil {
			message := err.Error()
			logRow.ResponseBody = &message
			if logErr := models.CreateApiRequestLog(ctx, &logRow); logErr != nil {
				config.LogError(config.GetLogger(), "apiTestHandlers", "apiConsoleRequestHandler", "save log", nil, logErr)
			}
			c.JSON(http.StatusBadGateway, gin.H{
				"error":       "request failed",
				"detail":      message,
				"duration_ms": elapsed.Milliseconds(),
			})
			return
		}

		logRow.StatusCode = status
		responseBody := string(body)
		logRow.ResponseBody = &responseBody
		if logErr := models.CreateApiRequestLog(ctx, &logRow); logErr != nil {
			config.LogError(config.GetLogger(), "apiTestHandlers", "apiConsoleRequestHandler", "save log", nil, logErr)
		}

		response := gin.H{
			"status_code": status,
			"duration_ms": elapsed.Milliseconds(),
		}
		var pretty interface{}
		if json.Unmarshal(body, &pretty) == nil {
			response["body"] = pretty
		} else {
			response["body"] = responseBody
		}
		c.JSON(http.StatusOK, response)
	}
}

func apiConsoleLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		logs, err := models.ListApiRequestLogs(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load logs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}
