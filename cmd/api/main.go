package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lingomeet/internal/app"
	"lingomeet/internal/database"
	jwtsvc "lingomeet/internal/pkg/jwt"
)

func main() {
	env, err := app.Bootstrap()
	if err != nil {
		log.Fatalf("api: %v", err)
	}
	cfg := env.Config

	if cfg.AppEnv == "prod" || cfg.AppEnv == "production" || cfg.AppEnv == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Migrate(env.DB); err != nil {
		env.Log.WithError(err).Fatal("migrate failed")
	}

	a, err := env.Build()
	if err != nil {
		env.Log.WithError(err).Fatal("build services failed")
	}

	j := jwtsvc.New(cfg.JWTSecret, 24*time.Hour)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(a, j, cfg.CORSOrigins, env.Log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		env.Log.WithField("addr", cfg.HTTPAddr).WithField("payment_provider", a.Provider.Name()).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Log.WithError(err).Fatal("listen failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.Log.WithError(err).Error("graceful shutdown failed")
	}
}
