package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Log       LogConfig       `mapstructure:"log"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | sqlite3
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type RateLimitConfig struct {
	RPS    int           `mapstructure:"rps"`
	Window time.Duration `mapstructure:"window"`
}

type WebhookConfig struct {
	Secret          string `mapstructure:"secret"`
	SignatureHeader string `mapstructure:"signature_header"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const sqliteURLPrefix = "sqlite:///"

// Load reads embedded defaults, merges user YAML (if provided), and applies env
// overrides (INBOX_*). WEBHOOK_SECRET, DATABASE_URL and LOG_LEVEL are honoured too.
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (INBOX_*)
	v.SetEnvPrefix("INBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("webhook.secret", "INBOX_WEBHOOK_SECRET", "WEBHOOK_SECRET")
	_ = v.BindEnv("log.level", "INBOX_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("database.url", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if url := strings.TrimSpace(v.GetString("database.url")); url != "" {
		cfg.Database.applyURL(url)
	}
	cfg.Webhook.Secret = strings.TrimSpace(cfg.Webhook.Secret)

	return cfg, nil
}

// applyURL maps DATABASE_URL onto driver+dsn. sqlite:///<path> selects sqlite3,
// anything else is taken as a MySQL DSN.
func (d *DatabaseConfig) applyURL(url string) {
	if strings.HasPrefix(url, sqliteURLPrefix) {
		d.Driver = "sqlite3"
		d.DSN = url[len(sqliteURLPrefix):]
		return
	}
	d.Driver = "mysql"
	d.DSN = url
}
