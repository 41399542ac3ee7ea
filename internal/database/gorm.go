package database

import (
	"fmt"
	"log"

	"erp-whatsapp-bridge/internal/config"
	"erp-whatsapp-bridge/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database (postgres in production, sqlite
// for local runs) and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBDriver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Printf("Connected to %s, migration completed", cfg.DBDriver)
	return db, nil
}

// Migrate runs the auto-migration for every model. Exposed separately so
// tests can migrate an in-memory database.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Contact{},
		&models.Conversation{},
		&models.Message{},
		&models.Template{},
		&models.ButtonAction{},
		&models.Scenario{},
		&models.ScenarioButton{},
		&models.Ticket{},
		&models.NotificationLedger{},
		&models.Invoice{},
		&models.SaleOrder{},
		&models.SystemSetting{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}
	return nil
}

// SyncConfig mirrors credential keys between the environment-loaded config
// and the system_settings table. A non-empty stored value wins over the
// environment; a fresh environment value is persisted for the next boot.
func SyncConfig(db *gorm.DB, cfg *config.Config) {
	settings := []struct {
		Key   string
		Value *string
	}{
		{"VERIFY_TOKEN", &cfg.VerifyToken},
		{"WHATSAPP_TOKEN", &cfg.AccessToken},
		{"PHONE_NUMBER_ID", &cfg.PhoneNumberID},
		{"WABA_ID", &cfg.BusinessAccountID},
		{"APP_SECRET", &cfg.AppSecret},
	}

	for _, s := range settings {
		var setting models.SystemSetting
		if err := db.Where("key = ?", s.Key).First(&setting).Error; err == nil {
			if setting.Value != "" {
				*s.Value = setting.Value
			}
		} else if *s.Value != "" {
			db.Create(&models.SystemSetting{
				Key:   s.Key,
				Value: *s.Value,
			})
		}
	}
	log.Println("System settings synchronized from database")
}
