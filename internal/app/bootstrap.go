package app

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lingomeet/internal/config"
	"lingomeet/internal/database"
	"lingomeet/internal/pkg/logger"
)

// Env is what every command needs before it can do work.
type Env struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *gorm.DB
}

// Bootstrap loads .env when present, reads the configuration and connects
// to the database.
func Bootstrap() (*Env, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &Env{Config: cfg, Log: log, DB: db}, nil
}

// Build creates the service graph with the configured payment provider.
func (e *Env) Build() (*App, error) {
	provider, err := NewProvider(e.Config.Payment)
	if err != nil {
		return nil, err
	}
	return New(e.DB, e.Config, provider, e.Log), nil
}
