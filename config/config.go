package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Files     FilesConfig     `mapstructure:"files"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 选择存储驱动：postgres 用于生产，sqlite 用于本地与测试
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	LogSQL     bool   `mapstructure:"log_sql"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// WebsocketConfig 时间单位均为秒
type WebsocketConfig struct {
	HeartbeatInterval int   `mapstructure:"heartbeat_interval"`
	ConnectionTimeout int   `mapstructure:"connection_timeout"`
	MaxMessageSize    int64 `mapstructure:"max_message_size"`
	SendBuffer        int   `mapstructure:"send_buffer"`
	CommandWorkers    int   `mapstructure:"command_workers"`
	CommandQueue      int   `mapstructure:"command_queue"`
}

type KafkaConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Brokers  []string       `mapstructure:"brokers"`
	Topics   TopicsConfig   `mapstructure:"topics"`
	Producer ProducerConfig `mapstructure:"producer"`
}

type TopicsConfig struct {
	Events string `mapstructure:"events"`
}

type ProducerConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`
}

type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Commands      int  `mapstructure:"commands"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

type FilesConfig struct {
	MaxSizeMB        int64 `mapstructure:"max_size_mb"`
	CompressionLevel int   `mapstructure:"compression_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "taskroom.db")

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 100)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 168)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("websocket.heartbeat_interval", 30)
	v.SetDefault("websocket.connection_timeout", 60)
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.command_workers", 16)
	v.SetDefault("websocket.command_queue", 1024)

	v.SetDefault("kafka.topics.events", "taskroom.events")
	v.SetDefault("kafka.producer.max_retries", 3)
	v.SetDefault("kafka.producer.retry_backoff_ms", 100)

	v.SetDefault("ratelimit.commands", 30)
	v.SetDefault("ratelimit.window_seconds", 10)

	v.SetDefault("files.max_size_mb", 100)
	v.SetDefault("files.compression_level", 2)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("TASKROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 检查启动所必需的配置项
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret must not be empty"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Websocket.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("websocket.heartbeat_interval must be positive"))
	}
	if c.Websocket.ConnectionTimeout <= c.Websocket.HeartbeatInterval {
		errs = append(errs, errors.New("websocket.connection_timeout must exceed heartbeat_interval"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers required when kafka is enabled"))
	}
	if c.Files.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("files.max_size_mb must be positive"))
	}
	return errors.Join(errs...)
}
