package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/adsdash/internal/adskit"
	"github.com/tyemirov/adsdash/internal/adskitpg"
	"github.com/tyemirov/adsdash/internal/web"
	"github.com/tyemirov/adsdash/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (adskit.GoogleTokenValidator, error) {
	return adskit.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

const (
	identityModeSession = "session"
	identityModeGoogle  = "google"

	databaseDriverGORM = "gorm"
	databaseDriverPGX  = "pgx"

	configCodeMissingGoogleClientID     = "config.missing_google_client_id"
	configCodeMissingGoogleClientSecret = "config.missing_google_client_secret"
	configCodeMissingDeveloperToken     = "config.missing_developer_token"
	configCodeInvalidIdentityMode       = "config.invalid_identity_mode"
	configCodeMissingSessionSigningKey  = "config.missing_session_signing_key"
	configCodeMissingSessionIssuer      = "config.missing_session_issuer"
	configCodeInvalidDatabaseDriver     = "config.invalid_database_driver"
	configCodeUninitializedServerConf   = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit       = "config.google_validator_init"
	configCodeMissingUserID             = "config.missing_user_id"
	configCodeMissingDatabaseURL        = "config.missing_database_url"
)

// ServerConfig is the validated runtime configuration of the dashboard backend.
type ServerConfig struct {
	Service           adskit.ServiceConfig
	ListenAddr        string
	IdentityMode      string
	SessionSigningKey []byte
	SessionIssuer     string
	DatabaseURL       string
	DatabaseDriver    string
	CORSOrigins       []string
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "adsdash",
		Short:   "Google Ads dashboard backend: OAuth token refresh, account resolution, and campaign listing",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth client secret")
	rootCmd.Flags().String("google_token_url", adskit.DefaultGoogleTokenURL, "OAuth token endpoint used for refresh_token grants")
	rootCmd.Flags().String("google_ads_developer_token", "", "Google Ads API developer token")
	rootCmd.Flags().String("google_ads_api_base_url", adskit.DefaultAdsAPIBaseURL, "Google Ads REST base URL")
	rootCmd.Flags().String("google_ads_api_version", adskit.DefaultAdsAPIVersion, "Google Ads REST API version")
	rootCmd.Flags().String("fallback_test_customer_id", adskit.DefaultFallbackTestCustomerID, "Customer ID of the synthetic test account")
	rootCmd.Flags().String("identity_mode", identityModeSession, "Bearer identity mode: session (HS256 JWT) or google (Google ID token)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{"*"}, "Allowed CORS origins; * allows any origin")
	rootCmd.PersistentFlags().String("session_signing_key", "", "HS256 secret used to verify bearer session tokens")
	rootCmd.PersistentFlags().String("session_issuer", "", "Expected issuer of bearer session tokens")
	rootCmd.PersistentFlags().String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.PersistentFlags().String("database_driver", databaseDriverGORM, "Database access layer for postgres URLs: gorm or pgx")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("google_client_id", rootCmd.Flags().Lookup("google_client_id"))
	_ = viper.BindPFlag("google_client_secret", rootCmd.Flags().Lookup("google_client_secret"))
	_ = viper.BindPFlag("google_token_url", rootCmd.Flags().Lookup("google_token_url"))
	_ = viper.BindPFlag("google_ads_developer_token", rootCmd.Flags().Lookup("google_ads_developer_token"))
	_ = viper.BindPFlag("google_ads_api_base_url", rootCmd.Flags().Lookup("google_ads_api_base_url"))
	_ = viper.BindPFlag("google_ads_api_version", rootCmd.Flags().Lookup("google_ads_api_version"))
	_ = viper.BindPFlag("fallback_test_customer_id", rootCmd.Flags().Lookup("fallback_test_customer_id"))
	_ = viper.BindPFlag("identity_mode", rootCmd.Flags().Lookup("identity_mode"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("session_signing_key", rootCmd.PersistentFlags().Lookup("session_signing_key"))
	_ = viper.BindPFlag("session_issuer", rootCmd.PersistentFlags().Lookup("session_issuer"))
	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database_url"))
	_ = viper.BindPFlag("database_driver", rootCmd.PersistentFlags().Lookup("database_driver"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newStoreGrantCommand(), newDevTokenCommand())
	return rootCmd
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates configuration once at startup.
func LoadServerConfig() (ServerConfig, error) {
	googleClientID := viper.GetString("google_client_id")
	if googleClientID == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}
	googleClientSecret := viper.GetString("google_client_secret")
	if googleClientSecret == "" {
		return ServerConfig{}, configError(configCodeMissingGoogleClientSecret, "google_client_secret must be provided")
	}
	developerToken := viper.GetString("google_ads_developer_token")
	if developerToken == "" {
		return ServerConfig{}, configError(configCodeMissingDeveloperToken, "google_ads_developer_token must be provided")
	}

	identityMode := strings.ToLower(strings.TrimSpace(viper.GetString("identity_mode")))
	if identityMode == "" {
		identityMode = identityModeSession
	}
	sessionSigningKey := viper.GetString("session_signing_key")
	sessionIssuer := viper.GetString("session_issuer")
	switch identityMode {
	case identityModeSession:
		if sessionSigningKey == "" {
			return ServerConfig{}, configError(configCodeMissingSessionSigningKey, "session_signing_key must be provided")
		}
		if sessionIssuer == "" {
			return ServerConfig{}, configError(configCodeMissingSessionIssuer, "session_issuer must be provided")
		}
	case identityModeGoogle:
	default:
		return ServerConfig{}, configError(configCodeInvalidIdentityMode, "identity_mode must be session or google")
	}

	databaseDriver, driverErr := loadDatabaseDriver()
	if driverErr != nil {
		return ServerConfig{}, driverErr
	}

	listenAddr := viper.GetString("listen_addr")
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	corsOrigins := viper.GetStringSlice("cors_allowed_origins")
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	return ServerConfig{
		Service: adskit.ServiceConfig{
			GoogleClientID:         googleClientID,
			GoogleClientSecret:     googleClientSecret,
			GoogleTokenURL:         viper.GetString("google_token_url"),
			DeveloperToken:         developerToken,
			AdsAPIBaseURL:          viper.GetString("google_ads_api_base_url"),
			AdsAPIVersion:          viper.GetString("google_ads_api_version"),
			FallbackTestCustomerID: viper.GetString("fallback_test_customer_id"),
		},
		ListenAddr:        listenAddr,
		IdentityMode:      identityMode,
		SessionSigningKey: []byte(sessionSigningKey),
		SessionIssuer:     sessionIssuer,
		DatabaseURL:       viper.GetString("database_url"),
		DatabaseDriver:    databaseDriver,
		CORSOrigins:       corsOrigins,
	}, nil
}

func loadDatabaseDriver() (string, error) {
	databaseDriver := strings.ToLower(strings.TrimSpace(viper.GetString("database_driver")))
	switch databaseDriver {
	case "", databaseDriverGORM:
		return databaseDriverGORM, nil
	case databaseDriverPGX:
		return databaseDriverPGX, nil
	default:
		return "", configError(configCodeInvalidDatabaseDriver, "database_driver must be gorm or pgx")
	}
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	identity, identityErr := buildIdentityResolver(commandContext, serverConfig)
	if identityErr != nil {
		return identityErr
	}

	credentialStore, auditStore, closeStores, storeErr := openStores(commandContext, serverConfig.DatabaseURL, serverConfig.DatabaseDriver, logger)
	if storeErr != nil {
		return storeErr
	}
	defer closeStores()

	metricsRecorder := adskit.NewCounterMetrics()
	dashboard, dashboardErr := adskit.NewDashboard(serverConfig.Service, adskit.DashboardDependencies{
		Credentials: credentialStore,
		Audit:       auditStore,
		Metrics:     metricsRecorder,
		Logger:      logger,
	})
	if dashboardErr != nil {
		return dashboardErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	corsMiddleware, corsErr := web.PermissiveCORS(logger, serverConfig.CORSOrigins)
	if corsErr != nil {
		return corsErr
	}
	router.Use(corsMiddleware)

	router.GET("/healthz", web.HandleHealth)
	router.GET("/internal/metrics", web.HandleMetrics(metricsRecorder))

	adskit.MountDashboardRoutes(router, dashboard, identity, logger)

	protected := router.Group("/api")
	protected.Use(adskit.RequireBearer(identity, logger))
	protected.GET("/me", web.HandleWhoAmI(logger, dashboard))

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", serverConfig.ListenAddr), zap.String("identity_mode", serverConfig.IdentityMode))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func buildIdentityResolver(ctx context.Context, serverConfig ServerConfig) (adskit.IdentityResolver, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if serverConfig.IdentityMode == identityModeGoogle {
		validator, validatorErr := buildGoogleTokenValidator(ctx)
		if validatorErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		return adskit.NewGoogleIdentity(validator, serverConfig.Service.GoogleClientID), nil
	}
	return sessionvalidator.New(sessionvalidator.Config{
		SigningKey: serverConfig.SessionSigningKey,
		Issuer:     serverConfig.SessionIssuer,
	})
}

func openStores(ctx context.Context, databaseURL string, databaseDriver string, logger *zap.Logger) (adskit.CredentialStore, adskit.AuditStore, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(databaseURL) == "" {
		logger.Info("using in-memory credential and audit stores")
		return adskit.NewMemoryCredentialStore(), adskit.NewMemoryAuditStore(), func() {}, nil
	}
	if databaseDriver == databaseDriverPGX {
		pool, poolErr := adskitpg.Open(ctx, databaseURL)
		if poolErr != nil {
			return nil, nil, nil, poolErr
		}
		logger.Info("using pgx credential and audit stores")
		return adskitpg.NewPostgresCredentialStore(pool), adskitpg.NewPostgresAuditStore(pool), pool.Close, nil
	}
	databaseStore, storeErr := adskit.NewDatabaseStore(ctx, databaseURL)
	if storeErr != nil {
		return nil, nil, nil, storeErr
	}
	logger.Info("using persistent credential and audit stores", zap.String("driver", databaseStore.Driver()))
	return databaseStore, databaseStore, func() {}, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
