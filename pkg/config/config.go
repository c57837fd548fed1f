package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Auth struct {
		JWTSecret string        `mapstructure:"JWT_SECRET"`
		Issuer    string        `mapstructure:"ISSUER"`
		Leeway    time.Duration `mapstructure:"LEEWAY"`
	} `mapstructure:"AUTH"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`

		SlowQueryThreshold time.Duration `mapstructure:"SLOW_QUERY_THRESHOLD"`

		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Chain struct {
		RPCURL          string        `mapstructure:"RPC_URL"`
		ContractAddress string        `mapstructure:"CONTRACT_ADDRESS"`
		PrivateKey      string        `mapstructure:"PRIVATE_KEY"`
		ChainID         int64         `mapstructure:"CHAIN_ID"`
		Confirmations   uint64        `mapstructure:"CONFIRMATIONS"`
		ConfirmTimeout  time.Duration `mapstructure:"CONFIRM_TIMEOUT"`
	} `mapstructure:"CHAIN"`
	Worker struct {
		Interval       time.Duration `mapstructure:"INTERVAL"`
		QueueBatchSize int           `mapstructure:"QUEUE_BATCH_SIZE"`
		SyncBatchSize  int           `mapstructure:"SYNC_BATCH_SIZE"`
	} `mapstructure:"WORKER"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults()

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		hydrateFromVault(p.Vault, &cfg)
	}

	return &cfg
}

func setDefaults() {
	config.SetDefault("HTTP_SERVER.ADDR", ":8080")
	config.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	config.SetDefault("DATABASE.SLOW_QUERY_THRESHOLD", 200*time.Millisecond)
	config.SetDefault("CHAIN.CONFIRMATIONS", 2)
	config.SetDefault("CHAIN.CONFIRM_TIMEOUT", 3*time.Minute)
	config.SetDefault("WORKER.INTERVAL", 60*time.Second)
	config.SetDefault("WORKER.QUEUE_BATCH_SIZE", 10)
	config.SetDefault("WORKER.SYNC_BATCH_SIZE", 100)
}

func hydrateFromVault(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("postgres_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("postgres_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := get("chain_private_key"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := get("jwt_secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}
