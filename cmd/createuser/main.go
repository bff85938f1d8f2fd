// Command createuser creates a staff user, or promotes an existing one and
// resets its password.
//
//	go run ./cmd/createuser -username admin -password secret123
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"polls-backend/config"
	"polls-backend/database"
	"polls-backend/service"

	"gorm.io/gorm/logger"
)

func main() {
	username := flag.String("username", os.Getenv("ADMIN_USERNAME"), "username of the staff user")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "password of the staff user")
	flag.Parse()

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if len(*password) < service.MinPasswordLength {
		log.Fatalf("Password must be at least %d characters", service.MinPasswordLength)
	}

	cfg := config.Load()
	db, err := database.Open(cfg.DB, logger.Default.LogMode(logger.Warn))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := database.EnsureStaffUser(ctx, db, *username, *password)
	if err != nil {
		log.Fatalf("Failed to create staff user: %v", err)
	}
	log.Printf("Staff user %s (id %d) is ready", user.Username, user.ID)

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
