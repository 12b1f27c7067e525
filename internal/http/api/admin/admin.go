package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/livemerce/pointsledger/internal/config"
	"github.com/livemerce/pointsledger/internal/http/api/admin/handlers"
	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/security"
	"github.com/livemerce/pointsledger/internal/settings"
	"gorm.io/gorm"
)

// RegisterAdminRoutes wires the points admin API onto the engine.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, authCfg config.AuthConfig, ledgerSvc *ledger.Service, provider *settings.Provider) {
	if r == nil || db == nil {
		return
	}

	r.GET("/healthz", handlers.Health)

	group := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, authCfg)
	group.POST("/auth/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(adminAuthMiddleware(db, authCfg))

	configHandler := handlers.NewConfigHandler(provider)
	authed.GET("/points/config", configHandler.Get)
	authed.PUT("/points/config", configHandler.Update)

	pointsHandler := handlers.NewPointsHandler(ledgerSvc)
	authed.POST("/points/users/:userId/adjust", pointsHandler.Adjust)
	authed.GET("/points/users/:userId/balance", pointsHandler.Balance)
	authed.GET("/points/users/:userId/transactions", pointsHandler.History)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, authCfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(authCfg.JWTSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
