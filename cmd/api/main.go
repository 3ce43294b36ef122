package main

import (
	"log"
	"net/http"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"geoconsole/internal/config"
	"geoconsole/internal/httpserver"
	"geoconsole/internal/logger"
	"geoconsole/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(&models.Company{}, &models.Device{}, &models.Location{}); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}

	router := httpserver.NewRouter(db, cfg, lg)
	lg.Infow("listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		lg.Fatalw("server stopped", "error", err)
	}
}
