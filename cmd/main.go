package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/techbreeze/order-service/docs"
	"github.com/techbreeze/order-service/internal/app"
	"github.com/techbreeze/order-service/internal/config"
	"github.com/techbreeze/order-service/internal/events"
	"github.com/techbreeze/order-service/internal/handler"
	"github.com/techbreeze/order-service/internal/middleware"
	"github.com/techbreeze/order-service/internal/postgres"
	"github.com/techbreeze/order-service/internal/repo"
	"github.com/techbreeze/order-service/internal/service"
	"github.com/techbreeze/order-service/pkg/cache"
	"github.com/techbreeze/order-service/pkg/trm"

	"github.com/joho/godotenv"
)

// @title           Order Lifecycle API
// @version         1.0
// @description     Order placement, status transitions and rider assignment.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())

	db, err := postgres.New(conf.Postgres)
	panicIfErr("failed to connect to db", err)
	defer db.Close()
	panicIfErr("failed to run migrations", postgres.Migrate(db, conf.Postgres))
	logger.Info("postgres connected")

	ordersRepo := repo.NewOrdersRepo(db)
	usersRepo := repo.NewUsersRepo(db)
	productsRepo := repo.NewProductsRepo(db)
	txManager := trm.NewManager(db)
	orderCache := cache.NewLRUCache(conf.Cache.Capacity, conf.Cache.TTL)
	publisher := events.NewPublisher(conf.Kafka)

	orderService := service.NewOrderService(logger, txManager, ordersRepo, usersRepo, productsRepo, orderCache, publisher)

	auth := middleware.Auth(logger, usersRepo)
	httpHandler := handler.NewHTTPHandler(logger, auth, orderService)
	handler.RegisterMetrics()

	app := app.New(logger, conf)
	app.SetHTTPHandlers(httpHandler)
	app.SetStarters(orderCache, cacheWarmUpAdapter{svc: orderService, count: conf.Cache.Capacity})
	app.SetClosers(publisher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	panicIfErr("failed to start app", app.Start(ctx))
	<-ctx.Done()
	panicIfErr("failed to stop app", app.Stop())
}

func init() {
	godotenv.Load()
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}

type warmUpper interface {
	WarmUpCache(ctx context.Context, count int) error
}

type cacheWarmUpAdapter struct {
	svc   warmUpper
	count int
}

func (a cacheWarmUpAdapter) Start(ctx context.Context) error {
	return a.svc.WarmUpCache(ctx, a.count)
}
