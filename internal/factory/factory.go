package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alerto-service/internal/client"
	"alerto-service/internal/config"
	"alerto-service/internal/events"
	"alerto-service/internal/handler"
	"alerto-service/internal/janitor"
	"alerto-service/internal/notify"
	"alerto-service/internal/ratelimit"
	clickhouserepo "alerto-service/internal/repository/clickhouse"
	redisrepo "alerto-service/internal/repository/redis"
	"alerto-service/internal/repository/scylla"
	"alerto-service/internal/service"
	"alerto-service/internal/tls"
	"alerto-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	createdConsumer  *client.KafkaConsumer
	verifyConsumer   *client.KafkaConsumer
	fcmClient        *client.FCMClient
	clickhouseClient *client.ClickHouseClient

	// Repositories
	counterStore  *redisrepo.CounterStore
	subscriptions *scylla.SubscriptionRepository
	profiles      *scylla.ProfileRepository
	reports       *scylla.ReportRepository

	// Core components
	limiter        *ratelimit.Limiter
	dispatcher     *notify.Dispatcher
	publisher      *events.Publisher
	consumer       *events.Consumer
	janitor        *janitor.Janitor
	gatewayService *service.GatewayService

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeComponents()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis (counter store)
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}

	// ScyllaDB (subscriptions, profiles, reports)
	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient

	// FCM (push provider)
	fcmClient, err := client.NewFCMClient(ctx, f.config, util.Get())
	if err != nil {
		return fmt.Errorf("fcm: %w", err)
	}
	f.fcmClient = fcmClient

	// Kafka (lifecycle events)
	producer, err := client.NewKafkaProducer(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	f.kafkaProducer = producer

	createdConsumer, err := client.NewKafkaConsumer(f.config,
		f.config.Kafka.ReportCreatedTopic, f.config.Kafka.ConsumerGroup, util.Get())
	if err != nil {
		return fmt.Errorf("kafka consumer (created): %w", err)
	}
	f.createdConsumer = createdConsumer

	verifyConsumer, err := client.NewKafkaConsumer(f.config,
		f.config.Kafka.VerificationTopic, f.config.Kafka.ConsumerGroup, util.Get())
	if err != nil {
		return fmt.Errorf("kafka consumer (verification): %w", err)
	}
	f.verifyConsumer = verifyConsumer

	// ClickHouse (delivery audit, optional)
	if f.config.Clickhouse.Enabled {
		chClient, err := client.NewClickHouseClient(f.config, util.Get())
		if err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without delivery audit",
				util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
		}
	}

	return nil
}

// initializeComponents wires repositories and core components
func (f *Factory) initializeComponents() {
	logger := util.Get()

	f.counterStore = redisrepo.NewCounterStore(f.redisClient)
	f.subscriptions = scylla.NewSubscriptionRepository(f.scyllaClient)
	f.profiles = scylla.NewProfileRepository(f.scyllaClient)
	f.reports = scylla.NewReportRepository(f.scyllaClient)

	f.limiter = ratelimit.NewLimiter(f.counterStore, logger)

	var audit notify.DeliveryRecorder
	if f.clickhouseClient != nil {
		audit = clickhouserepo.NewDeliveryLog(f.clickhouseClient)
	}
	f.dispatcher = notify.NewDispatcher(f.fcmClient, f.subscriptions, audit,
		f.config.FCM.SendsPerSecond, logger)

	f.publisher = events.NewPublisher(f.kafkaProducer,
		f.config.Kafka.ReportCreatedTopic, f.config.Kafka.VerificationTopic, logger)
	f.consumer = events.NewConsumer(f.createdConsumer, f.verifyConsumer, f.dispatcher, logger)

	f.janitor = janitor.New(f.counterStore,
		f.config.Janitor.Interval, f.config.Janitor.Retention, logger)

	f.gatewayService = service.NewGatewayService(
		f.limiter, f.subscriptions, f.profiles, f.reports,
		f.publisher, f.fcmClient, f.dispatcher, logger)
}

// StartBackground launches the event consumer and the janitor. They stop
// when the context is cancelled.
func (f *Factory) StartBackground(ctx context.Context) {
	f.consumer.Start(ctx)
	f.janitor.Start(ctx)
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) GatewayHandler() *handler.GatewayHandler {
	return handler.NewGatewayHandler(f.gatewayService, util.Get())
}

func (f *Factory) GatewayService() *service.GatewayService {
	return f.gatewayService
}

// Close shuts down all clients exactly once
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.createdConsumer != nil {
			_ = f.createdConsumer.Close()
		}
		if f.verifyConsumer != nil {
			_ = f.verifyConsumer.Close()
		}
		if f.kafkaProducer != nil {
			_ = f.kafkaProducer.Close()
		}
		if f.clickhouseClient != nil {
			_ = f.clickhouseClient.Close()
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			_ = f.redisClient.Close()
		}
		util.Sync()
	})
}
