package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"polls-backend/auth"
	"polls-backend/config"
	"polls-backend/migrations"
	"polls-backend/models"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database connection
var DB *gorm.DB

// InitDB opens the configured database, migrates the schema and, in
// development mode, seeds sample data.
func InitDB(cfg *config.Config) error {
	db, err := Open(cfg.DB, newLogger())
	if err != nil {
		return err
	}

	if err := Migrate(db); err != nil {
		return err
	}

	if cfg.IsDevelopment() {
		createSampleData(db)
	}
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if _, err := EnsureStaffUser(context.Background(), db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Printf("Failed to create admin user %s: %v", cfg.AdminUsername, err)
		}
	}

	DB = db
	log.Println("Database connected and migrated")
	return nil
}

// Open connects to the database selected by cfg.Driver
func Open(cfg config.DBConfig, gormLogger logger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		dialector = mysql.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath + "?_foreign_keys=1")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	log.Printf("Using %s database", cfg.Driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// Migrate brings the schema up to date
func Migrate(db *gorm.DB) error {
	if err := migrations.BackfillVoteQuestion(db); err != nil {
		return fmt.Errorf("migrate votes: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Question{}, &models.Choice{}, &models.Vote{}); err != nil {
		return fmt.Errorf("migrate models: %w", err)
	}
	return nil
}

// EnsureStaffUser creates the user as staff, or promotes and resets the
// password of an existing user with that name.
func EnsureStaffUser(ctx context.Context, db *gorm.DB, username, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var user models.User
	err = db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Username: username, PasswordHash: hash, IsStaff: true}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create staff user: %w", err)
		}
		log.Printf("Created staff user %s", username)
	case err != nil:
		return nil, fmt.Errorf("find user: %w", err)
	default:
		user.PasswordHash = hash
		user.IsStaff = true
		if err := db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, fmt.Errorf("promote user: %w", err)
		}
		log.Printf("Updated staff user %s", username)
	}
	return &user, nil
}

// createSampleData seeds one open question when the database is empty
func createSampleData(db *gorm.DB) {
	var count int64
	db.Model(&models.Question{}).Count(&count)
	if count > 0 {
		log.Println("Database already has questions, skipping sample data")
		return
	}

	log.Println("Creating sample data...")
	question := models.Question{
		QuestionText: "What's your favourite programming language?",
		PubDate:      time.Now().UTC().Add(-time.Hour),
		Choices: []models.Choice{
			{ChoiceText: "Go"},
			{ChoiceText: "Python"},
			{ChoiceText: "Rust"},
			{ChoiceText: "TypeScript"},
		},
	}
	if err := db.Create(&question).Error; err != nil {
		log.Printf("Failed to create sample question: %v", err)
		return
	}
	log.Println("Sample data created")
}

// CloseDB closes the database connection
func CloseDB() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("Failed to get database handle: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
		return
	}
	log.Println("Database connection closed")
}

func newLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}

// OpenInMemory opens a private in-memory SQLite database with the schema
// migrated. Each call returns a fresh, empty database.
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
