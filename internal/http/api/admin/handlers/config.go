package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/settings"
)

// ConfigHandler handles points program configuration endpoints.
type ConfigHandler struct {
	provider *settings.Provider
}

// NewConfigHandler constructs a ConfigHandler.
func NewConfigHandler(provider *settings.Provider) *ConfigHandler {
	return &ConfigHandler{provider: provider}
}

// Get returns the current points program configuration.
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, errGet := h.provider.Get(c.Request.Context())
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load config failed"})
		return
	}
	c.JSON(http.StatusOK, formatConfig(cfg))
}

// updateConfigRequest captures optional fields for config updates.
type updateConfigRequest struct {
	PointsEnabled          *bool `json:"points_enabled"`
	PointEarningRate       *int  `json:"point_earning_rate"`
	PointMinRedemption     *int  `json:"point_min_redemption"`
	PointMaxRedemptionPct  *int  `json:"point_max_redemption_pct"`
	PointExpirationEnabled *bool `json:"point_expiration_enabled"`
	PointExpirationMonths  *int  `json:"point_expiration_months"`
}

// Update applies a partial merge to the points program configuration.
func (h *ConfigHandler) Update(c *gin.Context) {
	var body updateConfigRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cfg, errUpdate := h.provider.Update(c.Request.Context(), settings.UpdateParams{
		PointsEnabled:          body.PointsEnabled,
		PointEarningRate:       body.PointEarningRate,
		PointMinRedemption:     body.PointMinRedemption,
		PointMaxRedemptionPct:  body.PointMaxRedemptionPct,
		PointExpirationEnabled: body.PointExpirationEnabled,
		PointExpirationMonths:  body.PointExpirationMonths,
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, settings.ErrInvalidValue) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errUpdate.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update config failed"})
		return
	}
	c.JSON(http.StatusOK, formatConfig(cfg))
}

// formatConfig maps the config row into a response payload.
func formatConfig(cfg *models.PointsConfig) gin.H {
	return gin.H{
		"points_enabled":           cfg.PointsEnabled,
		"point_earning_rate":       cfg.PointEarningRate,
		"point_min_redemption":     cfg.PointMinRedemption,
		"point_max_redemption_pct": cfg.PointMaxRedemptionPct,
		"point_expiration_enabled": cfg.PointExpirationEnabled,
		"point_expiration_months":  cfg.PointExpirationMonths,
		"updated_at":               cfg.UpdatedAt,
	}
}
