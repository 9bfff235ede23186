// Package config loads service settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imrishuroy/go-bookstore/internal/aws"
	"github.com/imrishuroy/go-bookstore/internal/events"
	"github.com/imrishuroy/go-bookstore/internal/uploads"
)

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Tables      TablesConfig      `mapstructure:"tables"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Events      EventsConfig      `mapstructure:"events"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Uploads     UploadsConfig     `mapstructure:"uploads"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	RunLocal bool   `mapstructure:"run_local"`
}

type AWSConfig struct {
	Region           string `mapstructure:"region"`
	EndpointOverride string `mapstructure:"endpoint_override"`
}

func (a AWSConfig) Settings() aws.Settings {
	return aws.Settings{Region: a.Region, EndpointOverride: a.EndpointOverride}
}

type TablesConfig struct {
	Books       string `mapstructure:"books"`
	Orders      string `mapstructure:"orders"`
	Idempotency string `mapstructure:"idempotency"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type GatewayConfig struct {
	KeyID     string        `mapstructure:"key_id"`
	KeySecret string        `mapstructure:"key_secret"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Currency  string        `mapstructure:"currency"`
}

// Configured reports whether both gateway credentials are present.
func (g GatewayConfig) Configured() bool {
	return g.KeyID != "" && g.KeySecret != ""
}

type AdminConfig struct {
	Password string `mapstructure:"password"`
}

// Event sinks.
const (
	SinkNone  = "none"
	SinkSQS   = "sqs"
	SinkKafka = "kafka"
)

type EventsConfig struct {
	Sink          string   `mapstructure:"sink"`
	QueueURL      string   `mapstructure:"queue_url"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
	KafkaUsername string   `mapstructure:"kafka_username"`
	KafkaPassword string   `mapstructure:"kafka_password"`
}

func (e EventsConfig) Kafka() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers:  e.KafkaBrokers,
		Topic:    e.KafkaTopic,
		Username: e.KafkaUsername,
		Password: e.KafkaPassword,
	}
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type UploadsConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

func (u UploadsConfig) Credentials() uploads.Credentials {
	return uploads.Credentials{CloudName: u.CloudName, APIKey: u.APIKey, APISecret: u.APISecret}
}

// key -> environment variable
var envBindings = map[string]string{
	"server.addr":           "ADDR",
	"server.run_local":      "RUN_LOCAL",
	"aws.region":            "AWS_REGION",
	"aws.endpoint_override": "AWS_ENDPOINT_OVERRIDE",
	"tables.books":          "BOOKS_TABLE",
	"tables.orders":         "ORDERS_TABLE",
	"tables.idempotency":    "IDEMPOTENCY_TABLE",
	"idempotency.ttl":       "IDEMPOTENCY_TTL",
	"gateway.key_id":        "RAZORPAY_KEY_ID",
	"gateway.key_secret":    "RAZORPAY_KEY_SECRET",
	"gateway.base_url":      "RAZORPAY_BASE_URL",
	"gateway.timeout":       "GATEWAY_TIMEOUT",
	"gateway.currency":      "DEFAULT_CURRENCY",
	"admin.password":        "ADMIN_PASS",
	"events.sink":           "EVENTS_SINK",
	"events.queue_url":      "ORDERS_QUEUE_URL",
	"events.kafka_brokers":  "KAFKA_BROKERS",
	"events.kafka_topic":    "KAFKA_TOPIC",
	"events.kafka_username": "KAFKA_USERNAME",
	"events.kafka_password": "KAFKA_PASSWORD",
	"metrics.enabled":       "METRICS_ENABLED",
	"metrics.namespace":     "METRICS_NAMESPACE",
	"uploads.cloud_name":    "CLOUDINARY_CLOUD_NAME",
	"uploads.api_key":       "CLOUDINARY_API_KEY",
	"uploads.api_secret":    "CLOUDINARY_API_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.run_local", false)
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("tables.books", "books")
	v.SetDefault("tables.orders", "orders")
	v.SetDefault("tables.idempotency", "idempotency")
	v.SetDefault("idempotency.ttl", "48h")
	v.SetDefault("gateway.base_url", "https://api.razorpay.com/v1")
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.currency", "INR")
	v.SetDefault("events.sink", SinkNone)
	v.SetDefault("events.kafka_topic", "order-events")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "Bookstore")
}

// Load reads the file named by BOOKSTORE_CONFIG (if set) and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("BOOKSTORE_CONFIG"))
}

// LoadFile is Load with an explicit config file path; "" means env and defaults only.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	trim := func(s *string) { *s = strings.TrimSpace(*s) }
	trim(&c.Gateway.KeyID)
	trim(&c.Gateway.KeySecret)
	trim(&c.Gateway.BaseURL)
	trim(&c.Admin.Password)
	trim(&c.Uploads.CloudName)
	trim(&c.Uploads.APIKey)
	trim(&c.Uploads.APISecret)
	c.Gateway.Currency = strings.ToUpper(strings.TrimSpace(c.Gateway.Currency))
	c.Events.Sink = strings.ToLower(strings.TrimSpace(c.Events.Sink))

	brokers := c.Events.KafkaBrokers[:0]
	for _, b := range c.Events.KafkaBrokers {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
	}
	c.Events.KafkaBrokers = brokers
}

func (c *Config) validate() error {
	switch c.Events.Sink {
	case SinkNone, "":
		c.Events.Sink = SinkNone
	case SinkSQS:
		if c.Events.QueueURL == "" {
			return fmt.Errorf("config: events.sink=sqs requires ORDERS_QUEUE_URL")
		}
	case SinkKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("config: events.sink=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("config: unknown events.sink %q", c.Events.Sink)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("config: gateway.timeout must be positive")
	}
	return nil
}
