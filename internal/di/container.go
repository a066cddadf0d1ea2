// Package di wires the application graph: config, infrastructure clients,
// repositories for the selected storage backend, services, workers and the
// HTTP router.
package di

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seatwise/seatwise/internal/booking"
	"github.com/seatwise/seatwise/internal/cart"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/handler"
	"github.com/seatwise/seatwise/internal/kafka"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/metrics"
	"github.com/seatwise/seatwise/internal/payment"
	"github.com/seatwise/seatwise/internal/queue"
	redispkg "github.com/seatwise/seatwise/internal/redis"
	"github.com/seatwise/seatwise/internal/repository"
	"github.com/seatwise/seatwise/internal/telemetry"
	"github.com/seatwise/seatwise/internal/worker"
	"github.com/seatwise/seatwise/migrations"
)

// Container holds the wired application
type Container struct {
	Config    *config.Config
	Logger    *logger.Logger
	Telemetry *telemetry.Telemetry

	DB        *database.PostgresDB
	Redis     *redispkg.Client
	Publisher events.Publisher

	Tx         repository.TxManager
	Seats      repository.SeatRepository
	Categories repository.CategoryRepository
	Events     repository.EventRepository
	Carts      repository.CartRepository
	Bookings   repository.BookingRepository
	QueueRepo  repository.QueueRepository

	Ledger    *ledger.Service
	CartMgr   *cart.Manager
	QueueCtrl *queue.Controller
	Finalizer *booking.Finalizer

	TickWorker      *worker.QueueTickWorker
	SweepWorker     *worker.LockSweepWorker
	PaymentConsumer *payment.Consumer

	Router *gin.Engine
}

// NewContainer builds the full dependency graph for the configured backend
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		return nil, err
	}
	c.Logger = logger.Get()

	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	c.Telemetry = tel

	if err := metrics.Init(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	if err := c.buildRepositories(ctx); err != nil {
		return nil, err
	}
	if err := c.buildPublisher(ctx); err != nil {
		return nil, err
	}
	c.buildServices()
	if err := c.buildConsumer(ctx); err != nil {
		return nil, err
	}
	c.buildRouter()

	return c, nil
}

func (c *Container) buildRepositories(ctx context.Context) error {
	cfg := c.Config

	if cfg.Storage.Backend == "memory" {
		store := repository.NewMemoryStore()
		c.Tx = store
		c.Seats = store
		c.QueueRepo = store
		c.Categories = repository.NewMemoryCategoryRepository(store)
		c.Events = repository.NewMemoryEventRepository(store)
		c.Carts = repository.NewMemoryCartRepository(store)
		c.Bookings = repository.NewMemoryBookingRepository(store)
		c.Logger.Info("using in-memory storage backend")
		return nil
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	c.DB = db

	if cfg.Database.Migrate {
		if err := migrations.Apply(ctx, db.Pool()); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		c.Logger.Info("database schema up to date")
	}

	redisClient, err := redispkg.NewClient(ctx, &redispkg.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Redis = redisClient

	pool := db.Pool()
	c.Tx = repository.NewPgxTxManager(pool)
	c.Seats = repository.NewPostgresSeatRepository(pool)
	c.Categories = repository.NewPostgresCategoryRepository(pool)
	c.Events = repository.NewPostgresEventRepository(pool)
	c.Carts = repository.NewPostgresCartRepository(pool)
	c.Bookings = repository.NewPostgresBookingRepository(pool)

	queueRepo := repository.NewRedisQueueRepository(redisClient)
	if err := queueRepo.LoadScripts(ctx); err != nil {
		return fmt.Errorf("failed to load queue scripts: %w", err)
	}
	c.QueueRepo = queueRepo
	return nil
}

func (c *Container) buildPublisher(ctx context.Context) error {
	cfg := c.Config
	if !cfg.Kafka.Enabled {
		c.Publisher = events.NoopPublisher{}
		return nil
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	c.Publisher = events.NewKafkaPublisher(producer, c.Logger)
	return nil
}

func (c *Container) buildServices() {
	cfg := c.Config
	clk := clock.NewSystem()

	c.Ledger = ledger.NewService(c.Seats, clk, c.Logger)

	c.QueueCtrl = queue.NewController(c.QueueRepo, c.Events, c.Publisher, clk, c.Logger, queue.Config{
		DefaultBatchSize:         cfg.Queue.DefaultBatchSize,
		DefaultProcessingMinutes: cfg.Queue.DefaultProcessingMinutes,
		AvgCheckoutMinutes:       cfg.Queue.AvgCheckoutMinutes,
		JWTSecret:                cfg.JWT.Secret,
		JWTIssuer:                cfg.JWT.Issuer,
		AdmissionPassTTL:         cfg.JWT.AdmissionPassTTL,
	})

	c.CartMgr = cart.NewManager(cart.ManagerParams{
		Carts:      c.Carts,
		Events:     c.Events,
		Categories: c.Categories,
		Ledger:     c.Ledger,
		Admission:  c.QueueCtrl,
		Clock:      clk,
		Logger:     c.Logger,
		CartTTL:    cfg.Locks.CartTTL,
		LockTTL:    cfg.Locks.SeatLockTTL,
	})

	c.Finalizer = booking.NewFinalizer(booking.FinalizerParams{
		Tx:         c.Tx,
		Carts:      c.Carts,
		Bookings:   c.Bookings,
		Categories: c.Categories,
		Events:     c.Events,
		Ledger:     c.Ledger,
		Queue:      c.QueueCtrl,
		Publisher:  c.Publisher,
		Clock:      clk,
		Logger:     c.Logger,
	})

	c.TickWorker = worker.NewQueueTickWorker(c.QueueCtrl, &worker.QueueTickWorkerConfig{
		TickInterval: cfg.Queue.TickInterval,
	})
	c.SweepWorker = worker.NewLockSweepWorker(c.Ledger, c.CartMgr, &worker.LockSweepWorkerConfig{
		SweepInterval: cfg.Locks.SweepInterval,
		BatchSize:     cfg.Locks.SweepBatch,
	})
}

func (c *Container) buildConsumer(ctx context.Context) error {
	cfg := c.Config
	if !cfg.Kafka.Enabled {
		return nil
	}

	consumer, err := payment.NewConsumer(ctx, &payment.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		GroupID:  cfg.Kafka.ConsumerGroup,
		ClientID: cfg.Kafka.ClientID,
	}, c.Finalizer)
	if err != nil {
		return fmt.Errorf("failed to create payment consumer: %w", err)
	}
	c.PaymentConsumer = consumer
	return nil
}

func (c *Container) buildRouter() {
	checks := map[string]handler.HealthCheck{}
	if c.DB != nil {
		checks["postgres"] = c.DB.HealthCheck
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.HealthCheck
	}

	c.Router = handler.NewRouter(handler.RouterParams{
		Queue:     handler.NewQueueHandler(c.QueueCtrl),
		Cart:      handler.NewCartHandler(c.CartMgr),
		Booking:   handler.NewBookingHandler(c.Finalizer),
		Health:    handler.NewHealthHandler(checks),
		JWTSecret: c.Config.JWT.Secret,
		JWTIssuer: c.Config.JWT.Issuer,
		Debug:     c.Config.App.Debug,
	})
}

// Start launches the background workers and the payment consumer
func (c *Container) Start(ctx context.Context) error {
	if err := c.TickWorker.Start(ctx); err != nil {
		return err
	}
	if err := c.SweepWorker.Start(ctx); err != nil {
		return err
	}
	if c.PaymentConsumer != nil {
		c.PaymentConsumer.Start(ctx)
	}
	return nil
}

// Shutdown stops workers and closes infrastructure clients
func (c *Container) Shutdown(ctx context.Context) {
	c.TickWorker.Stop()
	c.SweepWorker.Stop()
	if c.PaymentConsumer != nil {
		c.PaymentConsumer.Stop()
	}
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if err := c.Telemetry.Shutdown(ctx); err != nil {
		c.Logger.Warn("failed to shut down telemetry", zap.Error(err))
	}
	logger.Sync()
}
