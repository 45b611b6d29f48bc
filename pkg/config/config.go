package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Mpesa      MpesaConfig      `mapstructure:"mpesa"`
	SMS        SMSConfig        `mapstructure:"sms"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// TradingConfig controls the execution engine. FeeRate is kept as a string
// and parsed with shopspring/decimal at wiring time so the rate is exact.
type TradingConfig struct {
	FeeRate        string `mapstructure:"fee_rate"`
	LotSize        int64  `mapstructure:"lot_size"`
	UnitTimeoutSec int    `mapstructure:"unit_timeout_sec"`
}

type PaymentsConfig struct {
	MinDeposit  int64  `mapstructure:"min_deposit"`
	MaxDeposit  int64  `mapstructure:"max_deposit"`
	CallbackURL string `mapstructure:"callback_url"`
}

type MarketDataConfig struct {
	SourceURL   string `mapstructure:"source_url"`
	CacheTTLSec int    `mapstructure:"cache_ttl_sec"`
	IntervalSec int    `mapstructure:"interval_sec"`
}

type MpesaConfig struct {
	ConsumerKey        string `mapstructure:"consumer_key"`
	ConsumerSecret     string `mapstructure:"consumer_secret"`
	PassKey            string `mapstructure:"pass_key"`
	ShortCode          string `mapstructure:"short_code"`
	InitiatorName      string `mapstructure:"initiator_name"`
	SecurityCredential string `mapstructure:"security_credential"`
	Sandbox            bool   `mapstructure:"sandbox"`
}

type SMSConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Username string `mapstructure:"username"`
	Sender   string `mapstructure:"sender"`
	Sandbox  bool   `mapstructure:"sandbox"`
}

func Load(configName string) (*Config, error) {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/soko/")

	v.SetEnvPrefix("SOKO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("auth.jwt_secret", "dev-secret-change-in-production")

	v.SetDefault("trading.fee_rate", "0.005")
	v.SetDefault("trading.lot_size", 1)
	v.SetDefault("trading.unit_timeout_sec", 10)

	v.SetDefault("payments.min_deposit", 10)
	v.SetDefault("payments.max_deposit", 150000)

	v.SetDefault("market_data.cache_ttl_sec", 300)
	v.SetDefault("market_data.interval_sec", 300)

	v.SetDefault("mpesa.sandbox", true)
	v.SetDefault("sms.sandbox", true)
}
