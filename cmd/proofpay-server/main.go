package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"proofpay-core/internal/handler"
	"proofpay-core/internal/model"
	"proofpay-core/internal/server"
	"proofpay-core/internal/service"
	"proofpay-core/internal/service/ledger"
	"proofpay-core/internal/service/mq"
	"proofpay-core/internal/service/payment"
	"proofpay-core/internal/service/prover"
	"proofpay-core/pkg/config"
	"proofpay-core/pkg/database"
	"proofpay-core/pkg/logger"
	"proofpay-core/pkg/utils/lock"
)

func main() {
	config.Init()

	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)

	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}

	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}

	if config.Global.App.Env == "development" {
		logger.Info("development env: running GORM AutoMigrate")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("auto migration failed", zap.Error(err))
		}
	} else {
		logger.Info("production env: skipping AutoMigrate, use the migrate tool")
	}

	// External collaborators.
	ledgerClient, err := ledger.Dial(context.Background(), config.Global.Ledger.RPCURL)
	if err != nil {
		logger.Fatal("ledger rpc dial failed", zap.Error(err))
	}

	proverClient := prover.NewClient(prover.Options{
		BaseURL:       config.Global.Prover.URL,
		Timeout:       time.Duration(config.Global.Prover.TimeoutSeconds) * time.Second,
		MaxAttempts:   config.Global.Prover.MaxAttempts,
		BackoffBase:   time.Duration(config.Global.Prover.BackoffBaseMS) * time.Millisecond,
		BackoffCap:    time.Duration(config.Global.Prover.BackoffCapMS) * time.Millisecond,
		JitterPercent: config.Global.Prover.JitterPercent,
	})

	issuer := payment.NewHTTPIssuer(config.Global.Payment.ProviderURL,
		time.Duration(config.Global.Payment.TimeoutSeconds)*time.Second)

	// Pipeline services.
	policy := service.AmountPolicy{
		Base: mustDecimal(config.Global.Payment.BaseAmount),
		Rate: mustDecimal(config.Global.Payment.RateMultiplier),
		Max:  mustDecimal(config.Global.Payment.MaxAmount),
	}
	settlement := service.NewSettlementService(db, issuer, policy)

	submission := service.NewSubmissionService(db, ledgerClient, service.SubmissionOptions{
		RequireSignature: config.Global.Poller.RequireSignature,
	})

	poller := service.NewPollerService(db, ledgerClient, settlement, service.PollerOptions{
		Interval:  time.Duration(config.Global.Poller.IntervalSeconds) * time.Second,
		BatchSize: config.Global.Poller.BatchSize,
	})
	poller.Start(context.Background())

	expiry := service.NewExpiryService(db, lock.NewRedisLock(rdb), config.Global.Poller.ExpirySchedule)
	if err := expiry.Start(); err != nil {
		logger.Fatal("expiry sweeper failed to start", zap.Error(err))
	}

	// Outbox relay.
	var producer mq.Producer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("using Kafka for lifecycle events")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers, config.Global.Kafka.Topic)
	} else {
		logger.Info("using Redis Streams for lifecycle events")
		producer = mq.NewRedisProducer(rdb)
	}
	relayCtx, relayCancel := context.WithCancel(context.Background())
	relay := service.NewRelayService(db, producer)
	go relay.Start(relayCtx)

	proofs := service.NewProofService(db, proverClient, submission, poller, settlement)

	// HTTP surface.
	r := server.NewHTTPRouter(handler.NewProofHandler(proofs), handler.NewPaymentHandler(proofs))

	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, r)
	app.OnShutdown(func() {
		poller.Stop() // lets the in-flight tick finish
		expiry.Stop()
		relayCancel()
		_ = producer.Close()
		ledgerClient.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		rdb.Close()
	})

	app.Run()
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.Fatal("invalid decimal in configuration", zap.String("value", s), zap.Error(err))
	}
	return d
}
