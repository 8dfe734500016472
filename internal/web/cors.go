package web

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errEmptyAllowedOrigins = errors.New("cors: no origins provided")
	errInvalidOrigin       = errors.New("cors: invalid origin format")
)

// PermissiveCORS answers preflight requests for the dashboard frontend.
// A "*" entry allows every origin.
func PermissiveCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	sanitized, wildcard, err := sanitizeOrigins(allowedOrigins)
	if err != nil {
		return nil, err
	}
	if wildcard {
		config.AllowAllOrigins = true
		logger.Info("cors allows all origins", zap.String("code", "cors.origin.wildcard"))
	} else {
		config.AllowOrigins = sanitized
	}
	return cors.New(config), nil
}

func sanitizeOrigins(allowed []string) ([]string, bool, error) {
	seen := make(map[string]struct{})
	sanitized := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			return nil, true, nil
		}
		parsed, parseErr := url.Parse(trimmed)
		if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, false, fmt.Errorf("%w: %s", errInvalidOrigin, trimmed)
		}
		if parsed.Path != "" && parsed.Path != "/" {
			return nil, false, fmt.Errorf("%w: %s contains path segment", errInvalidOrigin, trimmed)
		}
		scheme := strings.ToLower(parsed.Scheme)
		if scheme != "https" && scheme != "http" {
			return nil, false, fmt.Errorf("%w: %s uses unsupported scheme", errInvalidOrigin, trimmed)
		}
		normalized := fmt.Sprintf("%s://%s", scheme, parsed.Host)
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		sanitized = append(sanitized, normalized)
	}
	if len(sanitized) == 0 {
		return nil, false, errEmptyAllowedOrigins
	}
	return sanitized, false, nil
}
