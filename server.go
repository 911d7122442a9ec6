package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/middlewares"
	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/models/reports"
	"bitbucket.org/meditech/medlink_backend/utils"
	"bitbucket.org/meditech/medlink_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

var validate = validator.New()

type runLinkingRequest struct {
	Scope  []int `json:"scope" validate:"omitempty,dive,gt=0"`
	Relink bool  `json:"relink"`
	DryRun bool  `json:"dryRun"`
}

func runLinkingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runLinkingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		// relink wipes committed links first; admin only
		if req.Relink && !utils.GetIsAdminFromContext(c.Request.Context()) {
			c.JSON(http.StatusForbidden, gin.H{"error": "relink requires admin role"})
			return
		}

		result := workflow.RunLinking(c.Request.Context(), workflow.RunOptions{
			Scope:  req.Scope,
			Relink: req.Relink,
			DryRun: req.DryRun,
		})
		if !req.DryRun && (result.TotalLinked > 0 || req.Relink) {
			_ = reports.InvalidateDiagnosticsCache()
		}
		c.JSON(http.StatusOK, result)
	}
}

func diagnosticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		diag, err := reports.GetEquipmentLinkingDiagnostics(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "diagnosticsHandler", "build diagnostics", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build diagnostics"})
			return
		}
		c.JSON(http.StatusOK, diag)
	}
}

func unlinkedEquipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
		report, err := reports.GetUnlinkedEquipmentReport(c.Request.Context(), page, pageSize)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "unlinkedEquipmentHandler", "build report", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build unlinked report"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func unlinkedExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, objectName, err := reports.ExportUnlinkedEquipment(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "unlinkedExportHandler", "export workbook", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export"})
			return
		}
		filename := objectName[strings.LastIndex(objectName, "/")+1:]
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

func equipmentLookupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ooiId, err := strconv.Atoi(c.Param("id"))
		if err != nil || ooiId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
			return
		}
		item, err := models.GetLegacyEquipmentItem(c.Request.Context(), ooiId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "equipment not found"})
				return
			}
			config.LogError(config.GetLogger(), "server.go", "equipmentLookupHandler", "fetch equipment", ooiId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch equipment"})
			return
		}
		link, err := models.GetEquipmentLinkByEquipmentId(c.Request.Context(), ooiId)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "equipmentLookupHandler", "fetch link", ooiId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch link"})
			return
		}
		// triage aid: the customer the order-out header names, if any
		legacyCustomer, err := models.GetLegacyCustomerForEquipment(c.Request.Context(), item)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "equipmentLookupHandler", "fetch legacy customer", ooiId, err)
		}
		c.JSON(http.StatusOK, gin.H{"equipment": item, "link": link, "legacy_customer": legacyCustomer})
	}
}

func clientVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || clientId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
			return
		}
		verification, err := reports.VerifyClientEquipment(c.Request.Context(), clientId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
				return
			}
			config.LogError(config.GetLogger(), "server.go", "clientVerificationHandler", "verify client", clientId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify client equipment"})
			return
		}
		c.JSON(http.StatusOK, verification)
	}
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			config.LogError(logger, "server.go", "customErrorLogger", c.Request.URL.Path, nil, ginErr.Err)
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
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

	// Start the HTTP server ASAP so the startup probe passes. Until the
	// databases are ready, app endpoints return 503.
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
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Redis is optional; only the databases gate readiness.
		if config.GetDB() == nil || config.GetLegacyDB() == nil {
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
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/linking")
	api.Use(middlewares.RequireAuth())
	api.POST("/run", runLinkingHandler())
	api.GET("/diagnostics", diagnosticsHandler())
	api.GET("/unlinked", unlinkedEquipmentHandler())
	api.GET("/unlinked/export", unlinkedExportHandler())
	api.GET("/equipment/:id", equipmentLookupHandler())
	api.GET("/clients/:id/verification", clientVerificationHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
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
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("equipment linking API listening on port ", port)

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
