package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DBDriver string `mapstructure:"db_driver" yaml:"db_driver"`
	DBDSN    string `mapstructure:"db_dsn" yaml:"db_dsn"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxContentLength   int   `mapstructure:"max_content_length" yaml:"max_content_length"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	DefaultPageSize    int   `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize        int   `mapstructure:"max_page_size" yaml:"max_page_size"`
	SendBuffer         int   `mapstructure:"send_buffer" yaml:"send_buffer"`

	GroupPruneInterval time.Duration `mapstructure:"group_prune_interval" yaml:"group_prune_interval"`
	GroupIdleTTL       time.Duration `mapstructure:"group_idle_ttl" yaml:"group_idle_ttl"`

	AMQPURL      string `mapstructure:"amqp_url" yaml:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange" yaml:"amqp_exchange"`
}

// DevJWTSecret is the out-of-the-box secret; the server warns when it is in use.
const DevJWTSecret = "dev-secret-change-me"

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DBDriver:           "sqlite3",
		DBDSN:              "datingchat.db",
		JWTSecret:          DevJWTSecret,
		JWTIssuer:          "datingchat",
		JWTAudience:        "datingchat",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    1 << 16,
		MaxContentLength:   2000,
		RateLimitPerMinute: 60,
		DefaultPageSize:    10,
		MaxPageSize:        50,
		SendBuffer:         32,
		GroupPruneInterval: 10 * time.Minute,
		GroupIdleTTL:       time.Hour,
		AMQPExchange:       "datingchat",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DBDriver != "" {
		c.DBDriver = other.DBDriver
	}
	if other.DBDSN != "" {
		c.DBDSN = other.DBDSN
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.AMQPURL != "" {
		c.AMQPURL = other.AMQPURL
	}
}
