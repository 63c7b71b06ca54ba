package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
	"github.com/onexay/contentvs/internal/storage"
)

// StorageBackend enumerates supported commit store backends.
type StorageBackend string

const (
	// StorageBackendMemory keeps history in-process.
	StorageBackendMemory StorageBackend = "memory"
	// StorageBackendKeyDB persists history to KeyDB/Redis.
	StorageBackendKeyDB StorageBackend = "keydb"
)

// Extra content generation policies.
const (
	ExtraPolicySync    = "SYNC"
	ExtraPolicyQueue   = "QUEUE"
	ExtraPolicyNothing = "NOTHING"
)

// Config aggregates runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retention RetentionConfig `mapstructure:"retention"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Content   ContentConfig   `mapstructure:"content"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Authz     AuthzConfig     `mapstructure:"authz"`
}

// ServerConfig selects the listen address and what the process runs.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug / release
	Role string `mapstructure:"role"` // all / api / worker
}

// LogConfig configures log output.
type LogConfig struct {
	Mode       string `mapstructure:"mode"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions converts to logger options.
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// StorageConfig contains backend selection and nested settings.
type StorageConfig struct {
	Backend StorageBackend `mapstructure:"backend"`
	KeyDB   KeyDBConfig    `mapstructure:"keydb"`
}

// KeyDBConfig holds the commit store connection.
type KeyDBConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ToStorageConfig converts to the storage package settings.
func (c KeyDBConfig) ToStorageConfig() storage.Config {
	return storage.Config{Addr: c.Addr, Username: c.Username, Password: c.Password, Database: c.DB}
}

// RetentionConfig holds defaults for snapshot archival.
type RetentionConfig struct {
	ArchivePath    string        `mapstructure:"archive_path"`
	HotCommitLimit int           `mapstructure:"hot_commit_limit"`
	HotDuration    time.Duration `mapstructure:"hot_duration"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"`
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// DatabasePoolConfig holds connection pool settings.
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// ToModelsPool converts to the models pool settings.
func (c DatabasePoolConfig) ToModelsPool() models.DBPoolConfig {
	return models.DBPoolConfig{
		MaxOpenConns:           c.MaxOpenConns,
		MaxIdleConns:           c.MaxIdleConns,
		ConnMaxLifetimeSeconds: c.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: c.ConnMaxIdleTimeSeconds,
	}
}

// RedisConfig backs the cross-process publication lock.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig configures the asynq client and worker.
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Addr        string         `mapstructure:"addr"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// ContentConfig tunes the content engine.
type ContentConfig struct {
	PublicRoot                   string        `mapstructure:"public_root"`
	DefaultTitle                 string        `mapstructure:"default_title"`
	MaxSlugLength                int           `mapstructure:"max_slug_length"`
	ExtraContentGenerationPolicy string        `mapstructure:"extra_content_generation_policy"`
	ExtraFormats                 []string      `mapstructure:"extra_formats"`
	PDFCommand                   []string      `mapstructure:"pdf_command"`
	ImportMaxBytes               int64         `mapstructure:"import_max_bytes"`
	PublishLockTTL               time.Duration `mapstructure:"publish_lock_ttl"`
}

// MirrorConfig configures the optional S3 copy of public artifacts.
type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// AuthzConfig appends policy lines to the built-in role policies.
type AuthzConfig struct {
	Policies []string `mapstructure:"policies"`
}

// legacyEnv keeps the variable names of earlier deployments working.
var legacyEnv = map[string]string{
	"server.addr":                "API_ADDR",
	"storage.backend":            "STORAGE_BACKEND",
	"storage.keydb.addr":         "KEYDB_ADDR",
	"storage.keydb.username":     "KEYDB_USERNAME",
	"storage.keydb.password":     "KEYDB_PASSWORD",
	"storage.keydb.db":           "KEYDB_DB",
	"retention.archive_path":     "RETENTION_ARCHIVE_PATH",
	"retention.hot_commit_limit": "RETENTION_HOT_COMMIT_LIMIT",
	"retention.hot_duration":     "RETENTION_HOT_DURATION",
}

// Load reads config.yaml (if found) and the environment. An explicit path
// replaces the search.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./etc")
	}
	setDefaults(v)

	v.SetEnvPrefix("CONTENTVS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "CONTENTVS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Debugw("config_file_missing", "fallback", "env_or_defaults")
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storage.Backend = StorageBackend(strings.ToLower(string(cfg.Storage.Backend)))
	cfg.Content.ExtraContentGenerationPolicy = strings.ToUpper(cfg.Content.ExtraContentGenerationPolicy)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.role", "all")
	v.SetDefault("log.mode", "stdout")
	v.SetDefault("log.filename", "contentvs.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("storage.backend", string(StorageBackendMemory))
	v.SetDefault("storage.keydb.addr", "")
	v.SetDefault("storage.keydb.username", "")
	v.SetDefault("storage.keydb.password", "")
	v.SetDefault("storage.keydb.db", 0)
	v.SetDefault("retention.archive_path", "data/archive.db")
	v.SetDefault("retention.hot_commit_limit", 0)
	v.SetDefault("retention.hot_duration", "0s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/contentvs.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "contentvs")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.addr", "127.0.0.1:6379")
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("content.public_root", "data/contents-public")
	v.SetDefault("content.default_title", "Contenu sans titre")
	v.SetDefault("content.max_slug_length", 80)
	v.SetDefault("content.extra_content_generation_policy", ExtraPolicySync)
	v.SetDefault("content.extra_formats", []string{"md", "epub", "zip"})
	v.SetDefault("content.pdf_command", []string{"pandoc", "--pdf-engine=xelatex", "-o", "{out}", "{in}"})
	v.SetDefault("content.import_max_bytes", 32<<20)
	v.SetDefault("content.publish_lock_ttl", "10m")
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.region", "us-east-1")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.access_key", "")
	v.SetDefault("mirror.secret_key", "")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("authz.policies", []string{})
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageBackendMemory, StorageBackendKeyDB:
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	switch c.Content.ExtraContentGenerationPolicy {
	case ExtraPolicySync, ExtraPolicyQueue, ExtraPolicyNothing:
	default:
		return fmt.Errorf("unsupported extra content generation policy: %s", c.Content.ExtraContentGenerationPolicy)
	}
	switch c.Server.Role {
	case "all", "api", "worker":
	default:
		return fmt.Errorf("unsupported server role: %s", c.Server.Role)
	}
	if c.Content.ExtraContentGenerationPolicy == ExtraPolicyQueue && !c.Queue.Enabled {
		return fmt.Errorf("extra content policy %s requires queue.enabled", ExtraPolicyQueue)
	}
	return nil
}
