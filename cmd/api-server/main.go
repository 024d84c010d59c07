package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/analytics"
	"github.com/frauddetect/fraud-engine/internal/auth"
	"github.com/frauddetect/fraud-engine/internal/broadcast"
	"github.com/frauddetect/fraud-engine/internal/fraud"
	"github.com/frauddetect/fraud-engine/internal/ingestion"
	"github.com/frauddetect/fraud-engine/internal/models"
	"github.com/frauddetect/fraud-engine/internal/queue"
	"github.com/frauddetect/fraud-engine/internal/repositories"
	"github.com/frauddetect/fraud-engine/internal/services"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg := configs.Load()

	// Setup logging
	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting Fraud Engine API Server")

	// Initialize database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	streamClient, err := queue.NewRedisStreamClient(cfg.Redis, cfg.Worker.DeadLetterStream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	ruleRepo := repositories.NewRuleRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Initialize services
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	authService := services.NewAuthService(userRepo, jwtManager)
	ingestionService := ingestion.NewService(txRepo, userRepo, auditRepo, streamClient)
	analyticsService := analytics.NewService(alertRepo, db, cacheClient)

	// Websocket hub plus the relay that delivers alerts raised by the
	// analysis worker process
	hub := broadcast.NewHub()
	go hub.Run()
	defer hub.Stop()

	relay, err := broadcast.NewRedisRelay(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect broadcast relay")
	}
	defer relay.Close()

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	go relay.Forward(relayCtx, hub)

	// Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := NewRateLimiter(100, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	// Setup routes
	setupRoutes(router, jwtManager, authService, ingestionService, analyticsService, streamClient, cacheClient, db, ruleRepo, alertRepo, auditRepo, hub)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupRoutes(
	router *gin.Engine,
	jwtManager *auth.JWTManager,
	authService *services.AuthService,
	ingestionService *ingestion.Service,
	analyticsService *analytics.Service,
	streamClient *queue.RedisStreamClient,
	cacheClient *queue.CacheClient,
	db *repositories.Database,
	ruleRepo *repositories.RuleRepository,
	alertRepo *repositories.AlertRepository,
	auditRepo *repositories.AuditRepository,
	hub *broadcast.Hub,
) {
	// Health check
	router.GET("/health", healthHandler(db, cacheClient))

	// Live alert feed for dashboards
	router.GET("/ws", auth.OptionalAuthMiddleware(jwtManager), broadcast.ServeWS(hub))

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Auth routes (public)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", registerHandler(authService))
		authRoutes.POST("/login", loginHandler(authService))
		authRoutes.POST("/refresh", auth.AuthMiddleware(jwtManager), refreshTokenHandler(authService))
	}

	// Protected routes
	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(jwtManager))

	// Transaction routes
	txRoutes := protected.Group("/transactions")
	{
		txRoutes.POST("", ingestTransactionHandler(ingestionService))
		txRoutes.GET("/recent", getRecentTransactionsHandler(ingestionService))
		txRoutes.GET("/:id", getTransactionHandler(ingestionService))
		txRoutes.GET("/:id/analysis", getTransactionAnalysisHandler(cacheClient))
		txRoutes.GET("/user/:user_id", getUserTransactionsHandler(ingestionService))
	}

	// Alert routes
	alertRoutes := protected.Group("/alerts")
	{
		alertRoutes.GET("", listAlertsHandler(alertRepo))
		alertRoutes.GET("/summary", getAlertSummaryHandler(analyticsService))
		alertRoutes.GET("/:id", getAlertHandler(alertRepo))
		alertRoutes.PATCH("/:id/status", updateAlertStatusHandler(alertRepo, auditRepo))
		alertRoutes.GET("/user/:user_id", getUserAlertsHandler(alertRepo))
	}

	// Rule management (admin and analyst only)
	ruleRoutes := protected.Group("/rules")
	ruleRoutes.Use(auth.RoleMiddleware(auth.RoleAdmin, auth.RoleAnalyst))
	{
		ruleRoutes.GET("", listRulesHandler(ruleRepo))
		ruleRoutes.POST("", createRuleHandler(ruleRepo, auditRepo))
		ruleRoutes.GET("/:id", getRuleHandler(ruleRepo))
		ruleRoutes.PUT("/:id", updateRuleHandler(ruleRepo, auditRepo))
		ruleRoutes.PATCH("/:id/active", setRuleActiveHandler(ruleRepo, auditRepo))
		ruleRoutes.DELETE("/:id", deleteRuleHandler(ruleRepo, auditRepo))
	}

	// Analytics routes
	analyticsRoutes := protected.Group("/analytics")
	{
		analyticsRoutes.GET("/volume/hourly", getHourlyVolumeHandler(analyticsService))
	}

	// Metrics routes (admin only)
	metricsRoutes := protected.Group("/metrics")
	metricsRoutes.Use(auth.RoleMiddleware(auth.RoleAdmin, auth.RoleAnalyst))
	{
		metricsRoutes.GET("/system", getSystemMetricsHandler(analyticsService, streamClient))
	}
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter implements a simple in-memory rate limiter using token bucket algorithm
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Clean up old visitors periodically
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Handlers

func healthHandler(db *repositories.Database, cacheClient *queue.CacheClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := "healthy"
		httpStatus := http.StatusOK
		checks := gin.H{"database": "ok", "redis": "ok"}

		if err := db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
		if err := cacheClient.HealthCheck(ctx); err != nil {
			checks["redis"] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":    status,
			"checks":    checks,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func registerHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, services.ErrWeakPassword):
				status = http.StatusBadRequest
			case errors.Is(err, repositories.ErrDuplicateUser):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func loginHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrInvalidCredentials) {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func refreshTokenHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if len(token) > 7 {
			token = token[7:] // Remove "Bearer "
		}

		resp, err := authService.RefreshToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func ingestTransactionHandler(ingestionService *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestion.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		requestID := c.GetString("request_id")
		resp, err := ingestionService.IngestTransaction(c.Request.Context(), &req, requestID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func getTransactionHandler(ingestionService *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tx, err := ingestionService.GetTransaction(c.Request.Context(), c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrTransactionNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, tx)
	}
}

func getTransactionAnalysisHandler(cacheClient *queue.CacheClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		analysis, err := fraud.CachedAnalysis(c.Request.Context(), cacheClient, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not available"})
			return
		}

		c.JSON(http.StatusOK, analysis)
	}
}

func getUserTransactionsHandler(ingestionService *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)

		transactions, total, err := ingestionService.GetTransactionsByUser(c.Request.Context(), c.Param("user_id"), page, pageSize)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"transactions": transactions,
			"total":        total,
			"page":         page,
			"page_size":    pageSize,
		})
	}
}

func getRecentTransactionsHandler(ingestionService *ingestion.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := getIntParam(c, "limit", 50)
		if limit > 500 {
			limit = 500
		}

		transactions, err := ingestionService.GetRecentTransactions(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"transactions": transactions})
	}
}

func listAlertsHandler(alertRepo *repositories.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)
		status := c.Query("status")
		riskLevel := c.Query("risk_level")

		alerts, total, err := alertRepo.List(c.Request.Context(), status, riskLevel, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"alerts":    alerts,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

func getAlertHandler(alertRepo *repositories.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
			return
		}

		alert, err := alertRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrAlertNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}

func getUserAlertsHandler(alertRepo *repositories.AlertRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		page := getIntParam(c, "page", 1)
		pageSize := getIntParam(c, "page_size", 20)

		alerts, total, err := alertRepo.GetByUserID(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"alerts":    alerts,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

type updateAlertStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

func updateAlertStatusHandler(alertRepo *repositories.AlertRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
			return
		}

		var req updateAlertStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		alert, err := alertRepo.UpdateStatus(c.Request.Context(), id, req.Status, req.Notes)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, repositories.ErrAlertNotFound):
				status = http.StatusNotFound
			case errors.Is(err, repositories.ErrInvalidAlertStatus):
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		recordAudit(c, auditRepo, models.AuditEventAlert, alert.ID, "alert", "status_update", map[string]interface{}{
			"status": req.Status,
		})

		c.JSON(http.StatusOK, alert)
	}
}

func getAlertSummaryHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := analyticsService.GetAlertSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

type ruleRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	RuleType    string  `json:"rule_type" binding:"required"`
	Condition   string  `json:"condition"`
	Threshold   float64 `json:"threshold"`
	Weight      float64 `json:"weight" binding:"required,gt=0,lte=1"`
	Active      *bool   `json:"active"`
}

func listRulesHandler(ruleRepo *repositories.RuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		rules, err := ruleRepo.GetAll(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"rules": rules})
	}
}

func createRuleHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ruleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rule := &models.Rule{
			Name:        req.Name,
			Description: req.Description,
			RuleType:    models.RuleType(req.RuleType),
			Condition:   req.Condition,
			Threshold:   req.Threshold,
			Weight:      req.Weight,
			Active:      req.Active == nil || *req.Active,
		}

		if err := ruleRepo.Create(c.Request.Context(), rule); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		recordAudit(c, auditRepo, models.AuditEventRuleUpdate, rule.ID, "rule", "create", map[string]interface{}{
			"name":      rule.Name,
			"rule_type": string(rule.RuleType),
		})

		c.JSON(http.StatusCreated, rule)
	}
}

func getRuleHandler(ruleRepo *repositories.RuleRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}

		rule, err := ruleRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrRuleNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, rule)
	}
}

func updateRuleHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}

		var req ruleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rule, err := ruleRepo.GetByID(c.Request.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrRuleNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		rule.Name = req.Name
		rule.Description = req.Description
		rule.RuleType = models.RuleType(req.RuleType)
		rule.Condition = req.Condition
		rule.Threshold = req.Threshold
		rule.Weight = req.Weight
		if req.Active != nil {
			rule.Active = *req.Active
		}

		if err := ruleRepo.Update(c.Request.Context(), rule); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		recordAudit(c, auditRepo, models.AuditEventRuleUpdate, rule.ID, "rule", "update", map[string]interface{}{
			"name": rule.Name,
		})

		c.JSON(http.StatusOK, rule)
	}
}

type setRuleActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func setRuleActiveHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}

		var req setRuleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := ruleRepo.SetActive(c.Request.Context(), id, *req.Active); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrRuleNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		recordAudit(c, auditRepo, models.AuditEventRuleUpdate, id, "rule", "toggle_active", map[string]interface{}{
			"active": *req.Active,
		})

		c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
	}
}

func deleteRuleHandler(ruleRepo *repositories.RuleRepository, auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}

		if err := ruleRepo.Delete(c.Request.Context(), id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, repositories.ErrRuleNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		recordAudit(c, auditRepo, models.AuditEventRuleUpdate, id, "rule", "delete", nil)

		c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
	}
}

func getHourlyVolumeHandler(analyticsService *analytics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := time.Now()
		if d := c.Query("date"); d != "" {
			parsed, err := time.Parse("2006-01-02", d)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
				return
			}
			date = parsed
		}

		volume, err := analyticsService.GetHourlyTransactionVolume(c.Request.Context(), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"date":   date.Format("2006-01-02"),
			"volume": volume,
		})
	}
}

func getSystemMetricsHandler(analyticsService *analytics.Service, streamClient *queue.RedisStreamClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := analyticsService.GetSystemMetrics(c.Request.Context(), streamClient)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, metrics)
	}
}

func recordAudit(c *gin.Context, auditRepo *repositories.AuditRepository, eventType string, entityID uuid.UUID, entityType, action string, payload map[string]interface{}) {
	entry := &models.AuditLog{
		EventType:  eventType,
		EntityID:   entityID,
		EntityType: entityType,
		Action:     action,
		Payload:    payload,
		RequestID:  c.GetString("request_id"),
	}
	if userID, ok := auth.GetUserIDFromContext(c); ok {
		entry.UserID = &userID
	}

	if err := auditRepo.Create(c.Request.Context(), entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}
