package config

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"min=0"`

	SSM SSMParams `mapstructure:"ssm"`
}

// SSMParams names the Parameter Store entries that replace host, user and password in prod.
type SSMParams struct {
	Host     string        `mapstructure:"host"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ParameterGetter fetches one decrypted parameter by name.
type ParameterGetter func(ctx context.Context, name string) (string, error)

// DSN builds the connection string. In prod the host, user and password come from
// AWS SSM Parameter Store; in every other environment the configured values are used.
func (cfg *PostgresConfig) DSN(ctx context.Context, env string) (string, error) {
	if env != "prod" {
		return cfg.dsn(cfg.Host, cfg.User, cfg.Password, cfg.DBName), nil
	}
	return cfg.DSNFrom(ctx, getParameterStoreValue)
}

// DSNFrom resolves the prod credentials through get.
func (cfg *PostgresConfig) DSNFrom(ctx context.Context, get ParameterGetter) (string, error) {
	timeout := cfg.SSM.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	values := make([]string, 3)
	for i, name := range []string{cfg.SSM.Host, cfg.SSM.User, cfg.SSM.Password} {
		v, err := get(ctx, name)
		if err != nil {
			return "", fmt.Errorf("ssm parameter %s: %w", name, err)
		}
		values[i] = v
	}
	return cfg.dsn(values[0], values[1], values[2], cfg.DBName), nil
}

// AdminDSN points at the maintenance database, used to create DBName.
func (cfg *PostgresConfig) AdminDSN() string {
	return cfg.dsn(cfg.Host, cfg.User, cfg.Password, "postgres")
}

func (cfg *PostgresConfig) dsn(host, user, password, dbname string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbname, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn
}

func getParameterStoreValue(ctx context.Context, parameterName string) (string, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(awsCfg)

	decrypt := true
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", err
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", parameterName)
	}
	return *result.Parameter.Value, nil
}
