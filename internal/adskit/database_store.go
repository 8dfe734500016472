package adskit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("database_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("database_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("database_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("database_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("database_store.unsupported_no_scheme")
)

// DatabaseStore persists credentials and audit events using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
	now         func() time.Time
}

type credentialRecord struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	AccessToken   string `gorm:"column:access_token;not null;default:''"`
	RefreshToken  string `gorm:"column:refresh_token;not null;default:''"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (credentialRecord) TableName() string {
	return "ad_credentials"
}

type auditRecord struct {
	ID            string `gorm:"column:id;primaryKey"`
	UserID        string `gorm:"column:user_id;index;not null"`
	Severity      string `gorm:"column:severity;not null"`
	Context       string `gorm:"column:context;not null"`
	API           string `gorm:"column:api;not null"`
	Message       string `gorm:"column:message;not null;default:''"`
	Details       string `gorm:"column:details;not null;default:''"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;index;not null"`
}

func (auditRecord) TableName() string {
	return "api_logs"
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// NewDatabaseStore opens the database and migrates the credential and audit tables.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("database_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialRecord{}, &auditRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("database_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get loads the credential row for the user.
func (store *DatabaseStore) Get(ctx context.Context, userID string) (UserCredential, error) {
	if strings.TrimSpace(userID) == "" {
		return UserCredential{}, fmt.Errorf("credential_store.get.%s: %w", store.driverLabel, ErrEmptyUserID)
	}
	var record credentialRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserCredential{}, fmt.Errorf("credential_store.get.%s: %w", store.driverLabel, ErrCredentialNotFound)
		}
		return UserCredential{}, fmt.Errorf("credential_store.get.%s: %w", store.driverLabel, err)
	}
	return UserCredential{
		UserID:       record.UserID,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
	}, nil
}

// UpdateAccessToken performs a conditional update keyed on the previously read access token.
func (store *DatabaseStore) UpdateAccessToken(ctx context.Context, userID string, expectedAccessToken string, newAccessToken string) error {
	result := store.db.WithContext(ctx).Model(&credentialRecord{}).
		Where("user_id = ? AND access_token = ?", userID, expectedAccessToken).
		Updates(map[string]any{
			"access_token":    newAccessToken,
			"updated_at_unix": store.now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("credential_store.update.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		countErr := store.db.WithContext(ctx).Model(&credentialRecord{}).Where("user_id = ?", userID).Count(&count).Error
		if countErr != nil {
			return fmt.Errorf("credential_store.update.%s: %w", store.driverLabel, countErr)
		}
		if count == 0 {
			return fmt.Errorf("credential_store.update.%s: %w", store.driverLabel, ErrCredentialNotFound)
		}
		return fmt.Errorf("credential_store.update.%s: %w", store.driverLabel, ErrCredentialConflict)
	}
	return nil
}

// SaveGrant upserts both tokens for the user.
func (store *DatabaseStore) SaveGrant(ctx context.Context, userID string, accessToken string, refreshToken string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credential_store.save.%s: %w", store.driverLabel, ErrEmptyUserID)
	}
	record := credentialRecord{
		UserID:        userID,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		UpdatedAtUnix: store.now().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "updated_at_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("credential_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Append inserts an audit event row.
func (store *DatabaseStore) Append(ctx context.Context, event AuditEvent) error {
	details := ""
	if len(event.Details) > 0 {
		encoded, encodeErr := json.Marshal(event.Details)
		if encodeErr != nil {
			return fmt.Errorf("audit_store.append.%s: %w", store.driverLabel, encodeErr)
		}
		details = string(encoded)
	}
	record := auditRecord{
		ID:            event.ID,
		UserID:        event.UserID,
		Severity:      string(event.Severity),
		Context:       event.Context,
		API:           event.API,
		Message:       event.Message,
		Details:       details,
		CreatedAtUnix: event.CreatedAt.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("audit_store.append.%s: %w", store.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("database_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("database_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("database_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("database_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
