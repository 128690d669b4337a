package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Path           string `mapstructure:"PATH"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConns    int           `mapstructure:"MAX_IDLE_CONNS"`
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
	Callback struct {
		// Location used to read the YYYYMMDDHHmm timestamps sent by the networks.
		Location       string        `mapstructure:"LOCATION"`
		MaxEventAge    time.Duration `mapstructure:"MAX_EVENT_AGE"`
		EventTTL       time.Duration `mapstructure:"EVENT_TTL"`
		CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`
		ForwardTimeout time.Duration `mapstructure:"FORWARD_TIMEOUT"`
	} `mapstructure:"CALLBACK"`
	Networks map[string]Network `mapstructure:"NETWORKS"`
	Exchange struct {
		Source          string        `mapstructure:"SOURCE"`
		BaseURL         string        `mapstructure:"BASE_URL"`
		CoinTigerURL    string        `mapstructure:"COINTIGER_URL"`
		CoinTigerKey    string        `mapstructure:"COINTIGER_KEY"`
		APIKey          string        `mapstructure:"API_KEY"`
		Secret          string        `mapstructure:"SECRET"`
		Symbol          string        `mapstructure:"SYMBOL"`
		MinBuyOrder     float64       `mapstructure:"MIN_BUY_ORDER"`
		SettlementDelay time.Duration `mapstructure:"SETTLEMENT_DELAY"`
		RateLimit       float64       `mapstructure:"RATE_LIMIT"`
		Timeout         time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"EXCHANGE"`
	Wallet struct {
		ServerURL string        `mapstructure:"SERVER_URL"`
		Token     string        `mapstructure:"TOKEN"`
		Timeout   time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"WALLET"`
	Payout struct {
		Production  bool          `mapstructure:"PRODUCTION"`
		Secret      string        `mapstructure:"SECRET"`
		FeePercent  float64       `mapstructure:"FEE_PERCENT"`
		DayDelay    int           `mapstructure:"DAY_DELAY"`
		RunHour     int           `mapstructure:"RUN_HOUR"`
		DryRunPrice float64       `mapstructure:"DRY_RUN_PRICE"`
		MemoPrefix  string        `mapstructure:"MEMO_PREFIX"`
		Parallelism int           `mapstructure:"PARALLELISM"`
		LockTTL     time.Duration `mapstructure:"LOCK_TTL"`
	} `mapstructure:"PAYOUT"`
}

// Network holds per ad-network verification settings.
type Network struct {
	PrivateKey string   `mapstructure:"PRIVATE_KEY"`
	CIDRs      []string `mapstructure:"CIDRS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "kinads-controlplane")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("OTEL.PROTOCOL", "http")

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.AUTO_MIGRATE", true)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("CALLBACK.LOCATION", "Europe/Amsterdam")
	v.SetDefault("CALLBACK.MAX_EVENT_AGE", 24*time.Hour)
	v.SetDefault("CALLBACK.EVENT_TTL", 24*time.Hour)
	v.SetDefault("CALLBACK.CACHE_TTL", 60*time.Second)
	v.SetDefault("CALLBACK.FORWARD_TIMEOUT", 5*time.Second)

	v.SetDefault("EXCHANGE.SOURCE", "bithumb")
	v.SetDefault("EXCHANGE.BASE_URL", "https://global-openapi.bithumb.pro/openapi/v1")
	v.SetDefault("EXCHANGE.COINTIGER_URL", "https://api.cointiger.com/exchange/trading/api")
	v.SetDefault("EXCHANGE.SYMBOL", "KIN-USDT")
	v.SetDefault("EXCHANGE.MIN_BUY_ORDER", 1e6)
	v.SetDefault("EXCHANGE.SETTLEMENT_DELAY", time.Second)
	v.SetDefault("EXCHANGE.RATE_LIMIT", 5)
	v.SetDefault("EXCHANGE.TIMEOUT", 10*time.Second)

	v.SetDefault("WALLET.SERVER_URL", "http://127.0.0.1:8081")
	v.SetDefault("WALLET.TIMEOUT", 30*time.Second)

	v.SetDefault("PAYOUT.FEE_PERCENT", 5)
	v.SetDefault("PAYOUT.DAY_DELAY", 3)
	v.SetDefault("PAYOUT.RUN_HOUR", 1)
	v.SetDefault("PAYOUT.DRY_RUN_PRICE", 0.01)
	v.SetDefault("PAYOUT.MEMO_PREFIX", "1-KAD1-")
	v.SetDefault("PAYOUT.PARALLELISM", 8)
	v.SetDefault("PAYOUT.LOCK_TTL", time.Hour)

	// Registered so AutomaticEnv can fill them during Unmarshal.
	for _, key := range []string{
		"APP_VERSION", "TLS.ENABLE", "TLS.CERT_PATH", "TLS.KEY_PATH", "OTEL.ADDR", "PYROSCOPE.ADDR",
		"DATABASE.HOST", "DATABASE.DBNAME", "DATABASE.USER", "DATABASE.PASSWORD", "DATABASE.PATH",
		"REDIS.PASSWORD", "REDIS.DB",
		"EXCHANGE.API_KEY", "EXCHANGE.SECRET", "EXCHANGE.COINTIGER_KEY",
		"WALLET.TOKEN", "PAYOUT.SECRET", "PAYOUT.PRODUCTION",
	} {
		if !v.IsSet(key) {
			v.SetDefault(key, "")
		}
	}
}

// Load reads config.yaml from path (or the working directory) and the
// environment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

// IsProduction reports whether real funds may move.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" && c.Payout.Production
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Exchange.APIKey = get("bithumb_key", cfg.Exchange.APIKey)
	cfg.Exchange.Secret = get("bithumb_secret", cfg.Exchange.Secret)
	cfg.Exchange.CoinTigerKey = get("cointiger_key", cfg.Exchange.CoinTigerKey)
	cfg.Wallet.Token = get("kin_server_token", cfg.Wallet.Token)
	cfg.Payout.Secret = get("kin_payout_secret", cfg.Payout.Secret)

	for name, network := range cfg.Networks {
		network.PrivateKey = get(strings.ToLower(name)+"_private_key", network.PrivateKey)
		cfg.Networks[name] = network
	}

	return nil
}
