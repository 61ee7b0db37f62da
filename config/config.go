package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Mail     MailConfig     `mapstructure:"mail"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisKeyPrefix  string        `mapstructure:"redis_key_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// LoginRPS and LoginBurst throttle mailbox key attempts per client IP,
	// over both REST and the mail socket.
	LoginRPS   float64 `mapstructure:"login_rps"`
	LoginBurst int     `mapstructure:"login_burst"`
	// AdminIPs restricts admin endpoints to these client IPs.
	// An empty slice allows all IPs (the admin key still applies).
	AdminIPs []string `mapstructure:"admin_ips"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MailConfig holds the mail rules. A negative expire window disables that
// expiry rule.
type MailConfig struct {
	Prefix            string        `mapstructure:"prefix"` // prepended to sender names, e.g. "SOE.EQ.Server."
	ExpireTrash       time.Duration `mapstructure:"expire_trash"`
	ExpireRead        time.Duration `mapstructure:"expire_read"`
	ExpireUnread      time.Duration `mapstructure:"expire_unread"`
	ExpireInterval    time.Duration `mapstructure:"expire_interval"`
	KeyIPVerification bool          `mapstructure:"key_ip_verification"`
}

// AuditConfig controls the audit trail writer. A non-positive Retention
// keeps entries forever.
type AuditConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Load reads config from the given YAML file path. Values from a .env file
// in the working directory and UCS_* environment variables
// (UCS_MAIL_PREFIX, UCS_DATABASE_MYSQL_DSN, ...) override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ucs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 7778)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/ucs.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.redis_key_prefix", "ucs:")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.login_rps", 0.2)
	v.SetDefault("security.login_burst", 5)
	v.SetDefault("mail.prefix", "SOE.EQ.Server.")
	v.SetDefault("mail.expire_trash", "0s")
	v.SetDefault("mail.expire_read", "8760h")
	v.SetDefault("mail.expire_unread", "8760h")
	v.SetDefault("mail.expire_interval", "15m")
	v.SetDefault("mail.key_ip_verification", true)
	v.SetDefault("audit.retention", "2160h")
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", "2s")
}
