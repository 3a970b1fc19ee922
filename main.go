package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/order"
	"ms-booking/internal/order/db"
	"ms-booking/internal/order/order_api"
	"ms-booking/internal/order/pricing"
	rediswrap "ms-booking/internal/order/redis"
	"ms-booking/internal/utils"
)

// connectPostgres opens the DSN and retries the ping while the database starts up.
func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		err   error
	)
	const maxRetries = 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.Ping(); err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", maxRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// openDatabase prefers Postgres. SQLITE_DSN runs the service without one for local development.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		if cfg.SQLiteDSN == "" {
			return nil, errors.New("POSTGRES_DSN or SQLITE_DSN must be set")
		}
		log.Warn("DATABASE", fmt.Sprintf("POSTGRES_DSN not set, using sqlite at %s", cfg.SQLiteDSN))
		bunDB, err := db.OpenSQLite(cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		return bunDB, db.CreateTables(ctx, bunDB)
	}

	bunDB, err := connectPostgres(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.MigrationsDir, AutoMigrate: true}, log)
		defer runner.Close()
		if err := runner.RunMigrations(); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return bunDB, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}

	cfg := config.Load()
	log := logger.NewLogger("booking-service", cfg.Log.Dir)
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	bunDB, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient, err := rediswrap.Connect(ctx, cfg.Redis.Addr, log)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer redisClient.Close()

	var (
		publisher notify.Publisher
		producer  *kafka.Producer
	)
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		publisher = producer
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are only logged")
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.Kafka.Topics.Notifications, log)

	calc, err := pricing.NewCalculator(pricing.Policy{DiscountRate: cfg.Orders.DiscountRate})
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid pricing policy: %v", err))
	}

	orderService := order.NewOrderService(
		&db.DB{Bun: bunDB},
		rediswrap.NewRedis(redisClient, cfg.Redis.LockTTL, cfg.Redis.LockWait, log),
		dispatcher,
		calc,
		order.Options{
			AllowEmpty:      cfg.Orders.AllowEmpty,
			ConflictRetries: cfg.Orders.ConflictRetries,
			Topics:          cfg.Kafka.Topics,
			Logger:          log,
		},
	)
	analyticsService := analytics.NewService(bunDB, log)

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up token verification: %v", err))
	}

	orderHandler := order_api.NewHandler(orderService, log, cfg.Server.StoreTimeout)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log, cfg.Server.StoreTimeout)

	r := chi.NewRouter()
	r.Use(utils.RequestLogger(log))

	// --- Public Routes ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Route("/api", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			analyticsHandler.RegisterRoutes(r)
		})
	})
	log.Info("ROUTER", "Order, vendor order and analytics routes registered under /api")

	go orderService.RunReconciler(ctx, cfg.Reconcile.Interval, cfg.Reconcile.Batch)

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.VendorOrderResponded, cfg.Kafka.GroupID, log)
		go consumer.Start(ctx, orderService.HandleVendorOrderEvent)
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
		}
	}
	dispatcher.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	log.Info("APP", "Booking Service shutdown complete")
}
