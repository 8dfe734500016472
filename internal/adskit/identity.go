package adskit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

// ContextKeyUserID holds the authenticated user id on the gin context.
const ContextKeyUserID = "auth_user_id"

var (
	// ErrMissingBearer indicates the Authorization header is absent or not a bearer token.
	ErrMissingBearer = errors.New("identity.missing_bearer")
	// ErrInvalidIdentity indicates the bearer token did not resolve to a user.
	ErrInvalidIdentity = errors.New("identity.invalid")
)

// IdentityResolver maps a bearer token to an application user id.
type IdentityResolver interface {
	ResolveUserID(ctx context.Context, bearerToken string) (string, error)
}

// GoogleTokenValidator validates Google ID tokens.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

var newGoogleTokenValidator = func(ctx context.Context) (GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

// NewGoogleTokenValidator builds the default idtoken validator.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	return newGoogleTokenValidator(ctx)
}

// GoogleIdentity resolves Google ID tokens to "google:<sub>" user ids.
type GoogleIdentity struct {
	validator GoogleTokenValidator
	audience  string
}

// NewGoogleIdentity constructs a resolver for the given OAuth client audience.
func NewGoogleIdentity(validator GoogleTokenValidator, audience string) *GoogleIdentity {
	return &GoogleIdentity{validator: validator, audience: audience}
}

// ResolveUserID validates the ID token issuer and subject.
func (identity *GoogleIdentity) ResolveUserID(ctx context.Context, bearerToken string) (string, error) {
	payload, validateErr := identity.validator.Validate(ctx, bearerToken, identity.audience)
	if validateErr != nil {
		return "", fmt.Errorf("identity.google: %w", ErrInvalidIdentity)
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		return "", fmt.Errorf("identity.google.issuer: %w", ErrInvalidIdentity)
	}
	googleSub, _ := payload.Claims["sub"].(string)
	if googleSub == "" {
		return "", fmt.Errorf("identity.google.subject: %w", ErrInvalidIdentity)
	}
	return "google:" + googleSub, nil
}

// RequireBearer resolves the Authorization bearer token and injects the user id.
// Rejections answer 500 {error} like every other dashboard failure.
func RequireBearer(resolver IdentityResolver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		bearerToken, extractErr := bearerFromHeader(contextGin.GetHeader("Authorization"))
		if extractErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Missing Authorization header"})
			return
		}
		userID, resolveErr := resolver.ResolveUserID(contextGin.Request.Context(), bearerToken)
		if resolveErr != nil || userID == "" {
			logger.Warn("bearer rejected",
				zap.String("code", "identity.rejected"),
				zap.Error(resolveErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Error getting user"})
			return
		}
		contextGin.Set(ContextKeyUserID, userID)
		contextGin.Next()
	}
}

func bearerFromHeader(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMissingBearer
	}
	return strings.TrimSpace(parts[1]), nil
}
