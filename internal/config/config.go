package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Records     RecordsConfig     `mapstructure:"records"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Extract     ExtractConfig     `mapstructure:"extract"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the job store: postgres, or memory for single-process runs.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RecordsConfig configures where standardized records and ingestion logs are written.
type RecordsConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Concurrency  int           `mapstructure:"concurrency"`
	Lease        time.Duration `mapstructure:"lease"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
}

type CoordinatorConfig struct {
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockWait       time.Duration `mapstructure:"lock_wait"`
	LockRetries    int           `mapstructure:"lock_retries"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
	PageSize       int           `mapstructure:"page_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

type ExtractConfig struct {
	MaxTries  int           `mapstructure:"max_tries"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

type SourcesConfig struct {
	Chula ChulaConfig `mapstructure:"chula"`
	Kmitl KmitlConfig `mapstructure:"kmitl"`
}

type ChulaConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	FilePath string `mapstructure:"file_path"`
}

type KmitlConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// DSNFor returns the gorm connection string for the configured driver.
func (c RecordsConfig) DSNFor() string {
	if c.Driver == "sqlite" {
		if c.DSN != "" {
			return c.DSN
		}
		return c.Path
	}
	return c.DSN
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("postgres.ensure_schema", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "lock:")

	v.SetDefault("records.driver", "postgres")
	v.SetDefault("records.path", "./data/records.db")
	v.SetDefault("records.auto_migrate", true)
	v.SetDefault("records.max_open_conns", 25)
	v.SetDefault("records.max_idle_conns", 5)
	v.SetDefault("records.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.concurrency", 100)
	v.SetDefault("worker.lease", 15*time.Minute)
	v.SetDefault("worker.reap_interval", 30*time.Second)
	v.SetDefault("worker.metrics_addr", ":9090")

	v.SetDefault("coordinator.lock_ttl", 5*time.Minute)
	v.SetDefault("coordinator.lock_wait", 2*time.Second)
	v.SetDefault("coordinator.lock_retries", 3)
	v.SetDefault("coordinator.lock_retry_delay", 200*time.Millisecond)
	v.SetDefault("coordinator.page_size", 100)
	v.SetDefault("coordinator.max_attempts", 5)

	v.SetDefault("extract.max_tries", 3)
	v.SetDefault("extract.base_delay", 10*time.Second)

	v.SetDefault("sources.chula.enabled", true)
	v.SetDefault("sources.chula.file_path", "./data/syllabus_listbyyearsem.json")
	v.SetDefault("sources.kmitl.enabled", false)
	v.SetDefault("sources.kmitl.timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
}

// Load reads configuration from an optional file, .env and the environment.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// имена переменных, которые уже используются в деплое
	_ = v.BindEnv("postgres.dsn", "POSTGRES_DSN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("records.dsn", "RECORDS_DSN")
	_ = v.BindEnv("sources.kmitl.base_url", "KMITL_BASE_URL")
	_ = v.BindEnv("sources.kmitl.api_key", "KMITL_API_KEY")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("log.environment", "APP_ENV")
	_ = v.BindEnv("log.file", "LOG_FILE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Records.Driver == "postgres" && cfg.Records.DSN == "" {
		cfg.Records.DSN = cfg.Postgres.DSN
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("worker.batch_size must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.Coordinator.PageSize <= 0 {
		errs = append(errs, errors.New("coordinator.page_size must be positive"))
	}
	if c.Coordinator.LockTTL <= 0 {
		errs = append(errs, errors.New("coordinator.lock_ttl must be positive"))
	}
	if c.Coordinator.LockRetries < 0 {
		errs = append(errs, errors.New("coordinator.lock_retries must not be negative"))
	}
	if c.Extract.MaxTries <= 0 {
		errs = append(errs, errors.New("extract.max_tries must be positive"))
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for store.driver=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	switch c.Records.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("records.driver %q is not supported", c.Records.Driver))
	}
	if c.Sources.Kmitl.Enabled && c.Sources.Kmitl.BaseURL == "" {
		errs = append(errs, errors.New("sources.kmitl.base_url is required when kmitl is enabled"))
	}
	if !c.Sources.Chula.Enabled && !c.Sources.Kmitl.Enabled {
		errs = append(errs, errors.New("at least one source must be enabled"))
	}
	return errors.Join(errs...)
}
