package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ClasslyHQ/Classly/app/repository"
	apiv1 "github.com/ClasslyHQ/Classly/internal/api/v1"
	"github.com/ClasslyHQ/Classly/internal/pkg/cache"
	"github.com/ClasslyHQ/Classly/internal/pkg/database"
	"github.com/ClasslyHQ/Classly/internal/pkg/env"
	"github.com/ClasslyHQ/Classly/internal/pkg/payments"
	"github.com/ClasslyHQ/Classly/internal/pkg/router"
	"github.com/ClasslyHQ/Classly/internal/pkg/sweeper"
)

func main() {
	app, sw := NewApplication()

	// stop the sweeper on SIGINT/SIGTERM before the server goes away
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		sw.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *sweeper.Sweeper) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repos := repository.NewFactory(database.GetDB()).GetRepositories()

	gateway := payments.NewGatewayClientFromEnv()
	locker := cache.NewRedisLocker()

	svc := payments.NewService(repos, gateway, locker)
	reconciler := payments.NewWebhookReconciler(svc, repos.WebhookEvent)

	sw := sweeper.New(svc, repos.CreditBalance, locker, time.Hour)
	sw.Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "Classly",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// ROUTER
	apiServer := apiv1.NewAPIServer(svc, reconciler)
	router.InstallRouter(app, router.NewApiRouter(apiServer))

	return app, sw
}
