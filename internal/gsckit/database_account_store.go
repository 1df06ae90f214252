package gsckit

import (
	"context"
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
	ErrUnsupportedDialect = errors.New("account_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("account_store.empty_database_url")
	errEmptyUserID         = errors.New("account_store.empty_user_id")
	errSQLiteEmptyPath     = errors.New("account_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("account_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("account_store.unsupported_no_scheme")
)

// DatabaseAccountStore persists credential records using GORM.
type DatabaseAccountStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseAccountStore) Driver() string {
	return store.driverLabel
}

type accountRow struct {
	UserID          string `gorm:"column:user_id;primaryKey"`
	AccessToken     string `gorm:"column:access_token;not null;default:''"`
	RefreshToken    string `gorm:"column:refresh_token;not null;default:''"`
	AccessExpiresAt int64  `gorm:"column:access_token_expires_unix;not null;default:0"`
	UpdatedAtUnix   int64  `gorm:"column:updated_at_unix;not null"`
}

func (accountRow) TableName() string {
	return "gsc_accounts"
}

// NewDatabaseAccountStore constructs a GORM-backed store.
func NewDatabaseAccountStore(ctx context.Context, databaseURL string) (*DatabaseAccountStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("account_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("account_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&accountRow{}); migrateErr != nil {
		return nil, fmt.Errorf("account_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseAccountStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Load fetches the credential record for the given user.
func (store *DatabaseAccountStore) Load(ctx context.Context, userID string) (AccountRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return AccountRecord{}, fmt.Errorf("account_store.load.%s: %w", store.driverLabel, errEmptyUserID)
	}
	var row accountRow
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccountRecord{}, fmt.Errorf("account_store.load.%s: %w", store.driverLabel, ErrAccountNotLinked)
		}
		return AccountRecord{}, fmt.Errorf("account_store.load.%s: %w", store.driverLabel, err)
	}
	return AccountRecord{
		UserID:               row.UserID,
		AccessToken:          row.AccessToken,
		RefreshToken:         row.RefreshToken,
		AccessTokenExpiresAt: time.Unix(row.AccessExpiresAt, 0).UTC(),
		UpdatedAt:            time.Unix(row.UpdatedAtUnix, 0).UTC(),
	}, nil
}

// Save writes the full record in one statement. An existing row for the user is
// replaced column-for-column, so the last writer always leaves a coherent record.
func (store *DatabaseAccountStore) Save(ctx context.Context, record AccountRecord) error {
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("account_store.save.%s: %w", store.driverLabel, errEmptyUserID)
	}
	row := accountRow{
		UserID:          record.UserID,
		AccessToken:     record.AccessToken,
		RefreshToken:    record.RefreshToken,
		AccessExpiresAt: record.AccessTokenExpiresAt.UTC().Unix(),
		UpdatedAtUnix:   record.UpdatedAt.UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("account_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("account_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("account_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("account_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("account_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
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
