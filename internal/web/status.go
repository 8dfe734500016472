package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/adsdash/internal/adskit"
	"go.uber.org/zap"
)

// CredentialStatusReader reports which Google Ads tokens are stored for a user.
type CredentialStatusReader interface {
	CredentialStatus(ctx context.Context, userID string) (hasAccessToken bool, hasRefreshToken bool, err error)
}

// CounterSnapshotter exposes metric counters.
type CounterSnapshotter interface {
	Snapshot() map[string]int64
}

// HandleWhoAmI reports the authenticated user and whether Google Ads is connected.
func HandleWhoAmI(logger *zap.Logger, credentials CredentialStatusReader) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if credentials == nil {
		panic("credential status reader is required")
	}

	return func(contextGin *gin.Context) {
		userID := contextGin.GetString(adskit.ContextKeyUserID)
		if userID == "" {
			logger.Warn("missing user id on context",
				zap.String("code", "api.me.missing_user"))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Error getting user"})
			return
		}

		hasAccessToken, hasRefreshToken, statusErr := credentials.CredentialStatus(contextGin.Request.Context(), userID)
		if statusErr != nil {
			logger.Error("credential status lookup error",
				zap.String("code", "api.me.credential_error"),
				zap.String("user_id", userID),
				zap.Error(statusErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": statusErr.Error()})
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"user_id":           userID,
			"has_access_token":  hasAccessToken,
			"has_refresh_token": hasRefreshToken,
			"connected":         hasAccessToken || hasRefreshToken,
		})
	}
}

// HandleHealth answers liveness probes.
func HandleHealth(contextGin *gin.Context) {
	contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleMetrics serves the current counter snapshot.
func HandleMetrics(metrics CounterSnapshotter) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		contextGin.Header("Cache-Control", "no-store")
		contextGin.JSON(http.StatusOK, metrics.Snapshot())
	}
}
