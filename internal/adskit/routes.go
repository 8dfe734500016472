package adskit

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MountDashboardRoutes registers /google-ads-accounts and /google-ads-campaigns behind bearer auth.
func MountDashboardRoutes(router gin.IRouter, dashboard *Dashboard, identity IdentityResolver, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	preflight := func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	}
	router.OPTIONS("/google-ads-accounts", preflight)
	router.OPTIONS("/google-ads-campaigns", preflight)

	protected := router.Group("/")
	protected.Use(RequireBearer(identity, logger))

	protected.POST("/google-ads-accounts", func(contextGin *gin.Context) {
		var inbound struct {
			TestMode bool `json:"test_mode"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil && !errors.Is(err, io.EOF) {
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "invalid_json"})
			return
		}
		userID := contextGin.GetString(ContextKeyUserID)
		accounts, listErr := dashboard.ListAccounts(contextGin.Request.Context(), userID, inbound.TestMode)
		if listErr != nil {
			logger.Error("list accounts failed",
				zap.String("code", "api.accounts.failed"),
				zap.String("user_id", userID),
				zap.Error(listErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": listErr.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"accounts": accounts})
	})

	protected.GET("/google-ads-campaigns", func(contextGin *gin.Context) {
		userID := contextGin.GetString(ContextKeyUserID)
		campaigns, listErr := dashboard.ListCampaigns(contextGin.Request.Context(), userID, contextGin.Query("customer_id"))
		if listErr != nil {
			logger.Error("list campaigns failed",
				zap.String("code", "api.campaigns.failed"),
				zap.String("user_id", userID),
				zap.Error(listErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": listErr.Error()})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
	})
}
