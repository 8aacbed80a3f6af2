package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CB_POSTGRES_HOST.
const EnvPrefix = "CB"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres" validate:"-"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment" validate:"oneof=dev prod"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputFile string `mapstructure:"output_file"` // file path to store logs (optional)
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`

	// copied from app.environment
	Environment string `mapstructure:"-"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=postgres memory"`
	CreateDB    bool   `mapstructure:"create_db"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	PriceTTL time.Duration `mapstructure:"price_ttl" validate:"min=0"`
}

type LedgerConfig struct {
	DailyReward string        `mapstructure:"daily_reward" validate:"required,numeric"`
	ListLimit   int           `mapstructure:"list_limit" validate:"min=1"`
	OpTimeout   time.Duration `mapstructure:"op_timeout" validate:"min=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", true)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.create_db", false)
	v.SetDefault("storage.auto_migrate", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "cryptobroker")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.ssm.host", "/cryptobroker/db/host")
	v.SetDefault("postgres.ssm.user", "/cryptobroker/db/user")
	v.SetDefault("postgres.ssm.password", "/cryptobroker/db/password")
	v.SetDefault("postgres.ssm.timeout", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_ttl", 30*time.Second)

	v.SetDefault("ledger.daily_reward", "100")
	v.SetDefault("ledger.list_limit", 200)
	v.SetDefault("ledger.op_timeout", 10*time.Second)
}

// Load reads config.yaml from dir (or ./config, ../config, ../../config when dir is empty),
// then applies CB_* environment variables. A .env file in the working directory is
// loaded into the environment first. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., CB_POSTGRES_HOST)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Log.Environment = cfg.App.Environment

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the settings the chosen storage driver needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Driver == "postgres" {
		if err := validator.New().Struct(&c.Postgres); err != nil {
			return fmt.Errorf("invalid postgres config: %w", err)
		}
	}
	return nil
}
