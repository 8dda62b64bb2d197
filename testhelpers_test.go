//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/internal/config"
	settlementEvents "github.com/khidma/service-settlement/internal/events"
	"github.com/khidma/service-settlement/internal/repository"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/database"
	"github.com/khidma/service-settlement/pkg/events"
	"github.com/khidma/service-settlement/pkg/kafka"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// settlementStack holds wired-up settlement components.
type settlementStack struct {
	Promos     *application.PromoService
	Settlement *application.SettlementService
	Wallet     *application.WalletService
	Payouts    *application.PayoutService
	Consumer   *settlementEvents.LifecycleConsumer
	Cleanup    func()
}

var admin = application.Actor{UserID: uuid.New(), Role: auth.RoleAdmin}

func clientActor() application.Actor {
	return application.Actor{UserID: uuid.New(), Role: auth.RoleClient}
}

func providerActor() application.Actor {
	return application.Actor{UserID: uuid.New(), Role: auth.RoleProvider}
}

// setupPostgres starts PostgreSQL and applies the migrations.
func setupPostgres(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_settlement",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_settlement",
		SSLMode:  "disable",
		MaxConns: 20,
		MinConns: 2,
	}

	logger := zap.NewNop()
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(cfg, logger)
		return err == nil
	}, 30*time.Second, time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(cfg.DatabaseURL(), "migrations", logger))

	return db, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}
}

// setupContainers starts PostgreSQL and Kafka.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	db, cleanupDB := setupPostgres(t)

	// confluent-local supports KRaft natively.
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicBookingLifecycle, events.TopicNotifications)

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup: func() {
			if err := kafkaContainer.Terminate(ctx); err != nil {
				t.Logf("failed to terminate Kafka container: %v", err)
			}
			cleanupDB()
		},
	}
}

// testSettlementConfig removes tax so amounts in assertions stay round.
func testSettlementConfig() config.SettlementConfig {
	cfg := config.DefaultSettlementConfig()
	cfg.TaxRate = decimal.Zero
	return cfg
}

// setupStack wires the services on db. With brokers, notifications go to
// Kafka and a lifecycle consumer is created.
func setupStack(t *testing.T, db *gorm.DB, brokers []string, cfg config.SettlementConfig) *settlementStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	var notifier adapter.Notifier = adapter.NopNotifier{}
	cleanup := func() {}
	if len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, logger)
		notifier = adapter.NewKafkaNotifier(producer)
		cleanup = func() { _ = producer.Close() }
	}

	uow := repository.NewGormUnitOfWork(db)
	gateway := adapter.NewMockGateway(logger)
	promos := application.NewPromoService(uow, logger)
	settlement := application.NewSettlementService(uow, promos, gateway, notifier, cfg, logger)

	stack := &settlementStack{
		Promos:     promos,
		Settlement: settlement,
		Wallet:     application.NewWalletService(uow, gateway, notifier, cfg.Currency, logger),
		Payouts:    application.NewPayoutService(uow, notifier, cfg, logger),
		Cleanup:    cleanup,
	}
	if len(brokers) > 0 {
		groupID := fmt.Sprintf("test-settlement-%s", uuid.New().String()[:8])
		stack.Consumer = settlementEvents.NewLifecycleConsumer(brokers, groupID, settlement, logger)
	}
	return stack
}

func (s *settlementStack) deposit(t *testing.T, owner uuid.UUID, amount string) {
	t.Helper()
	_, err := s.Wallet.Deposit(context.Background(), owner, application.DepositRequest{
		Amount:       decimal.RequireFromString(amount),
		PaymentToken: "pm_card_visa",
	})
	require.NoError(t, err)
}

func (s *settlementStack) book(client application.Actor, providerID uuid.UUID, price, code string) (*application.BookingDTO, error) {
	return s.Settlement.CreateBooking(context.Background(), client, application.CreateBookingRequest{
		ProviderID: providerID,
		Items:      []application.BookingItem{{ServiceID: "cleaning", Price: decimal.RequireFromString(price), Quantity: 1}},
		PromoCode:  code,
	})
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	producer := kafka.NewProducer(brokers, zap.NewNop())
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")
	require.NoError(t, producer.PublishEvent(context.Background(), topic, ce), "failed to publish event")
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type for userID.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, userID uuid.UUID, timeout time.Duration) events.Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     fmt.Sprintf("test-assert-%s", uuid.New().String()[:8]),
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil || ce.Type != expectedType {
			continue
		}
		var n events.Notification
		if err := ce.ParseData(&n); err == nil && n.UserID == userID {
			return n
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
