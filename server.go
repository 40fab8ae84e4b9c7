package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/maintenance_backend/config"
	"bitbucket.org/mmdatafocus/maintenance_backend/conservation"
	"bitbucket.org/mmdatafocus/maintenance_backend/middlewares"
	"bitbucket.org/mmdatafocus/maintenance_backend/models"
	"bitbucket.org/mmdatafocus/maintenance_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Shared collaborators, wired once in main before routes are served.
var (
	stockClient  *conservation.Client
	displayNames *conservation.DisplayNameService
	reconciler   *conservation.Reconciler
)

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	_ = godotenv.Load()

	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	stockClient = conservation.NewClientFromEnv()
	displayNames = conservation.NewDisplayNameService(stockClient)
	reconciler = conservation.NewReconciler(stockClient)

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate everything else on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r)
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error("migration failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/login", loginHandler())
	r.POST("/auth/logout", logoutHandler())
	r.GET("/auth/users", loginUserListHandler())

	api := r.Group("/api", middlewares.RequireLogin())

	api.GET("/parts", listPartsHandler())
	api.POST("/parts", createPartHandler())
	api.GET("/parts/export", exportPartsHandler())
	api.GET("/parts/remote-search", remoteSearchPartsHandler())
	api.POST("/parts/register-external", registerExternalPartHandler())
	api.GET("/parts/:id", partDetailHandler())
	api.PUT("/parts/:id", updatePartHandler())
	api.DELETE("/parts/:id", deletePartHandler())
	api.PUT("/parts/:id/display-name", updatePartDisplayNameHandler())
	api.PUT("/parts/:id/memo", updatePartMemoHandler())
	api.POST("/parts/:id/image", uploadPartImageHandler())
	api.DELETE("/parts/:id/image", deletePartImageHandler())
	api.POST("/parts/:id/equipments", attachPartEquipmentHandler())
	api.DELETE("/parts/:id/equipments/:equipmentId", detachPartEquipmentHandler())

	api.GET("/works", listWorksHandler())
	api.POST("/works", createWorkHandler())
	api.GET("/works/:id", workDetailHandler())
	api.PUT("/works/:id", updateWorkHandler())
	api.DELETE("/works/:id", deleteWorkHandler())
	api.POST("/works/:id/used-parts", addWorkUsedPartHandler())
	api.DELETE("/works/:id/used-parts/:usedPartId", removeWorkUsedPartHandler())
	api.GET("/works/:id/costs", listWorkCostsHandler())
	api.POST("/works/:id/costs", addWorkCostHandler())
	api.DELETE("/works/:id/costs/:costId", removeWorkCostHandler())
	api.GET("/works/:id/contents", listWorkContentsHandler())
	api.POST("/works/:id/contents", addWorkContentHandler())
	api.GET("/works/:id/activities", listWorkActivitiesHandler())
	api.GET("/works/:id/attachments", listWorkAttachmentsHandler())
	api.POST("/works/:id/attachments", uploadWorkAttachmentHandler())
	api.DELETE("/works/:id/attachments/:attachmentId", removeWorkAttachmentHandler())

	api.GET("/equipments", listEquipmentsHandler())
	api.GET("/equipments/options", equipmentOptionsHandler())
	api.GET("/equipments/children", equipmentChildrenHandler())
	api.GET("/equipments/:id", equipmentDetailHandler())
	api.GET("/masters", lookupMastersHandler())
	api.GET("/dashboard", dashboardHandler())

	admin := r.Group("/api", middlewares.RequireAdmin())
	admin.POST("/equipments", createEquipmentHandler())
	admin.PUT("/equipments/:id", updateEquipmentHandler())
	admin.DELETE("/equipments/:id", deleteEquipmentHandler())
	admin.POST("/equipments/:id/image", uploadEquipmentImageHandler())
	admin.GET("/users", listUsersHandler())
	admin.GET("/users/remote-search", remoteSearchUsersHandler())
	admin.PUT("/users/:id/external-link", linkUserExternalHandler())
	admin.POST("/users", createUserHandler())
	admin.PUT("/users/:id", updateUserHandler())
	admin.DELETE("/users/:id", deleteUserHandler())
	admin.POST("/console/request", apiConsoleRequestHandler())
	admin.GET("/console/logs", apiConsoleLogsHandler())
}

// customErrorLogger logs only requests that accumulated errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			fields := logrus.Fields{}
			ctx := c.Request.Context()
			if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
				fields["correlation_id"] = correlationId
			}
			if userName, ok := utils.GetUserNameFromContext(ctx); ok {
				fields["user"] = userName
			}
			logger.WithFields(fields).Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
