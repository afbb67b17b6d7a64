package repositories

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"loyka/internal/config"
	"loyka/internal/models"
)

// InitDB opens the Postgres connection, configures the pool and migrates
// the ledger schema.
func InitDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		config.GetEnv("DB_HOST", "localhost"),
		config.GetEnv("DB_USER", "postgres"),
		config.GetEnv("DB_PASSWORD", "postgres"),
		config.GetEnv("DB_NAME", "loyka"),
		config.GetEnv("DB_PORT", "5432"),
		config.GetEnv("DB_SSLMODE", "disable"),
	)

	logLevel := gormlogger.Warn
	if config.IsProduction() {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.GetIntEnv("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetMaxOpenConns(config.GetIntEnv("DB_MAX_OPEN_CONNS", 100))
	sqlDB.SetConnMaxLifetime(config.GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour))
	sqlDB.SetConnMaxIdleTime(config.GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute))

	if err := db.AutoMigrate(
		&models.Guest{},
		&models.GuestRestaurantAccount{},
		&models.CardIdentifier{},
		&models.Transaction{},
		&models.BalanceDetail{},
		&models.TierDefinition{},
		&models.TierEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// NewRedisClient builds a Redis client from the environment.
func NewRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.GetEnv("REDIS_HOST", "localhost") + ":" + config.GetEnv("REDIS_PORT", "6379"),
		Password: config.GetEnv("REDIS_PASSWORD", ""),
		DB:       config.GetIntEnv("REDIS_DB", 0),
	})
}

// SeedTiers inserts the tier table when it is empty. Tier thresholds are
// loaded once at process start and never mutated at runtime.
func SeedTiers(db *gorm.DB, tiers []models.TierDefinition) error {
	var count int64
	if err := db.Model(&models.TierDefinition{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count tiers: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := db.Create(&tiers).Error; err != nil {
		return fmt.Errorf("failed to seed tiers: %w", err)
	}
	return nil
}

// LoadTiers reads the configured tier table ordered by rank.
func LoadTiers(db *gorm.DB) ([]models.TierDefinition, error) {
	var tiers []models.TierDefinition
	if err := db.Order("rank ASC").Find(&tiers).Error; err != nil {
		return nil, fmt.Errorf("failed to load tiers: %w", err)
	}
	return tiers, nil
}
