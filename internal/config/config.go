package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	JWT     JWTConfig     `yaml:"jwt"`
	Log     LogConfig     `yaml:"log"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	APNs    APNsConfig    `yaml:"apns"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// StorageConfig selects and configures the key-value backend
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AlertsConfig holds alert lifecycle settings
type AlertsConfig struct {
	PruneInterval   time.Duration  `yaml:"prune_interval"`
	MaxAge          time.Duration  `yaml:"max_age"`
	SeedSampleUsers bool           `yaml:"seed_sample_users"`
	Location        LocationConfig `yaml:"location"`
}

// LocationConfig is the fixed location stamped on every alert
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Address   string  `yaml:"address"`
}

// MQTTConfig holds MQTT bridge configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// APNsConfig holds Apple push configuration
type APNsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// ArchiveConfig holds S3 archive configuration for pruned alerts
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// Default returns the configuration used when a field is not set
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Storage: StorageConfig{
			Driver: DriverMemory,
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "shakti:"},
			Database: DatabaseConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "shakti",
				SSLMode: "disable",
			},
		},
		JWT: JWTConfig{TTL: 7 * 24 * time.Hour},
		Log: LogConfig{Level: "info", Pretty: true},
		Alerts: AlertsConfig{
			PruneInterval:   time.Hour,
			MaxAge:          24 * time.Hour,
			SeedSampleUsers: true,
			Location: LocationConfig{
				Latitude:  30.7333,
				Longitude: 76.7794,
				Address:   "Demo Location, Chandigarh",
			},
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "shakti-alert-backend",
			TopicPrefix: "shakti",
			QoS:         1,
		},
		APNs:    APNsConfig{Topic: "org.shakti.alert"},
		Archive: ArchiveConfig{Region: "us-east-1", Prefix: "alerts"},
	}
}

// Load reads configuration from a YAML file on top of the defaults and
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.Redis.Addr, "REDIS_ADDR")
	setString(&c.Storage.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Storage.Database.Host, "DB_HOST")
	setString(&c.Storage.Database.User, "DB_USER")
	setString(&c.Storage.Database.Password, "DB_PASSWORD")
	setString(&c.Storage.Database.DBName, "DB_NAME")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.MQTT.Password, "MQTT_PASSWORD")
	setString(&c.Archive.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&c.Archive.SecretKey, "AWS_SECRET_ACCESS_KEY")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		c.Storage.Database.Port = port
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration can start the server
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if c.Alerts.PruneInterval <= 0 {
		return fmt.Errorf("alerts prune_interval must be positive, got %s", c.Alerts.PruneInterval)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive bucket is required when archive is enabled")
	}
	if c.APNs.Enabled && (c.APNs.KeyFile == "" || c.APNs.KeyID == "" || c.APNs.TeamID == "") {
		return errors.New("apns key_file, key_id and team_id are required when apns is enabled")
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
