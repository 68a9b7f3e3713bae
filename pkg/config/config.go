package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Prover  ProverConfig  `mapstructure:"prover"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Payment PaymentConfig `mapstructure:"payment"`
	Poller  PollerConfig  `mapstructure:"poller"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ProverConfig drives the external prover client, including its retry policy.
type ProverConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	BackoffBaseMS  int    `mapstructure:"backoff_base_ms"`
	BackoffCapMS   int    `mapstructure:"backoff_cap_ms"`
	JitterPercent  int    `mapstructure:"jitter_percent"`
}

type LedgerConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// PaymentConfig holds the reward formula constants and the provider endpoint.
// Amount = min(max_amount, base_amount + threshold * rate_multiplier).
type PaymentConfig struct {
	ProviderURL    string `mapstructure:"provider_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	BaseAmount     string `mapstructure:"base_amount"`
	RateMultiplier string `mapstructure:"rate_multiplier"`
	MaxAmount      string `mapstructure:"max_amount"`
}

type PollerConfig struct {
	IntervalSeconds  int    `mapstructure:"interval_seconds"`
	BatchSize        int    `mapstructure:"batch_size"`
	ExpirySchedule   string `mapstructure:"expiry_schedule"`
	RequireSignature bool   `mapstructure:"require_signature"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "proofpay_user")
	viper.SetDefault("db.password", "proofpay_password")
	viper.SetDefault("db.name", "proofpay_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "proof_events")

	viper.SetDefault("prover.url", "http://localhost:9100")
	viper.SetDefault("prover.timeout_seconds", 30)
	viper.SetDefault("prover.max_attempts", 3)
	viper.SetDefault("prover.backoff_base_ms", 1000)
	viper.SetDefault("prover.backoff_cap_ms", 10000)
	viper.SetDefault("prover.jitter_percent", 30)

	viper.SetDefault("ledger.rpc_url", "http://localhost:26657")

	viper.SetDefault("payment.provider_url", "http://localhost:9200")
	viper.SetDefault("payment.timeout_seconds", 15)
	viper.SetDefault("payment.base_amount", "5")
	viper.SetDefault("payment.rate_multiplier", "0.0001")
	viper.SetDefault("payment.max_amount", "50")

	viper.SetDefault("poller.interval_seconds", 10)
	viper.SetDefault("poller.batch_size", 50)
	viper.SetDefault("poller.expiry_schedule", "@every 1m")
	viper.SetDefault("poller.require_signature", true)
}
