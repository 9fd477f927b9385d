// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"comm-debugger/internal/model"
	"comm-debugger/internal/protocol"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Session  SessionConfig  `mapstructure:"session"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Security SecurityConfig `mapstructure:"security"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SessionConfig controls the event pipeline of a debugging session
type SessionConfig struct {
	HistorySize      int `mapstructure:"history_size"`
	EventQueueSize   int `mapstructure:"event_queue_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// ChannelsConfig holds per-transport defaults and tuning
type ChannelsConfig struct {
	Serial SerialDefaults `mapstructure:"serial"`
	TCP    TCPDefaults    `mapstructure:"tcp"`
	UDP    UDPDefaults    `mapstructure:"udp"`
}

// SerialDefaults represents the serial line settings used when a request omits them
type SerialDefaults struct {
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    string        `mapstructure:"stop_bits"`
	FlowControl string        `mapstructure:"flow_control"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	ReadBuffer  int           `mapstructure:"read_buffer"`
}

// TCPDefaults represents TCP defaults
type TCPDefaults struct {
	Role            string        `mapstructure:"role"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	KeepAlive       bool          `mapstructure:"keep_alive"`
	KeepAlivePeriod time.Duration `mapstructure:"keep_alive_period"`
}

// UDPDefaults represents UDP defaults
type UDPDefaults struct {
	LocalAddress    string `mapstructure:"local_address"`
	MaxDatagramSize int    `mapstructure:"max_datagram_size"`
}

// CaptureConfig represents the optional Postgres capture log
type CaptureConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	QueueSize      int            `mapstructure:"queue_size"`
	BatchSize      int            `mapstructure:"batch_size"`
	FlushInterval  time.Duration  `mapstructure:"flush_interval"`
	Retention      time.Duration  `mapstructure:"retention"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	Database       DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from config.yaml in ./ or ./configs and from
// COMM_DEBUGGER_* environment variables. A missing file is not an error.
func Load() (*Config, error) {
	return load("")
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Environment variable support
	v.SetEnvPrefix("COMM_DEBUGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Session defaults
	v.SetDefault("session.history_size", 500)
	v.SetDefault("session.event_queue_size", 1024)
	v.SetDefault("session.subscriber_buffer", 256)

	// Channel defaults
	v.SetDefault("channels.serial.baud_rate", 9600)
	v.SetDefault("channels.serial.data_bits", 8)
	v.SetDefault("channels.serial.parity", "none")
	v.SetDefault("channels.serial.stop_bits", "1")
	v.SetDefault("channels.serial.flow_control", "none")
	v.SetDefault("channels.serial.read_timeout", "100ms")
	v.SetDefault("channels.serial.read_buffer", 4096)

	v.SetDefault("channels.tcp.role", "client")
	v.SetDefault("channels.tcp.dial_timeout", "10s")
	v.SetDefault("channels.tcp.keep_alive", true)
	v.SetDefault("channels.tcp.keep_alive_period", "30s")

	v.SetDefault("channels.udp.local_address", "0.0.0.0")
	v.SetDefault("channels.udp.max_datagram_size", 65535)

	// Capture defaults
	v.SetDefault("capture.enabled", false)
	v.SetDefault("capture.queue_size", 1024)
	v.SetDefault("capture.batch_size", 100)
	v.SetDefault("capture.flush_interval", "1s")
	v.SetDefault("capture.retention", "168h")
	v.SetDefault("capture.migrations_path", "file://migrations")
	v.SetDefault("capture.database.host", "localhost")
	v.SetDefault("capture.database.port", 5432)
	v.SetDefault("capture.database.user", "postgres")
	v.SetDefault("capture.database.password", "postgres")
	v.SetDefault("capture.database.dbname", "comm_debugger")
	v.SetDefault("capture.database.sslmode", "disable")
	v.SetDefault("capture.database.max_open_conns", 10)
	v.SetDefault("capture.database.max_idle_conns", 2)
	v.SetDefault("capture.database.max_lifetime", "5m")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// App defaults
	v.SetDefault("app.name", "comm-debugger")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Session.HistorySize <= 0 {
		return fmt.Errorf("session.history_size must be positive")
	}
	if config.Session.EventQueueSize <= 0 {
		return fmt.Errorf("session.event_queue_size must be positive")
	}

	// The serial defaults must form a valid line configuration on their own
	probe := config.ConfigDefaults()
	if _, err := model.ParseStopBits(config.Channels.Serial.StopBits); err != nil {
		return fmt.Errorf("channels.serial.stop_bits: %w", err)
	}
	serialProbe := model.SerialConfig{
		PortName:    "probe",
		BaudRate:    probe.BaudRate,
		DataBits:    probe.DataBits,
		Parity:      probe.Parity,
		StopBits:    probe.StopBits,
		FlowControl: probe.FlowControl,
	}
	if err := serialProbe.Validate(); err != nil {
		return fmt.Errorf("channels.serial: %w", err)
	}

	switch model.TCPRole(config.Channels.TCP.Role) {
	case model.TCPRoleClient, model.TCPRoleServer:
	default:
		return fmt.Errorf("channels.tcp.role must be client or server")
	}

	if config.Capture.Enabled && config.Capture.Database.Host == "" {
		return fmt.Errorf("capture.database.host is required when capture is enabled")
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// ChannelOptions returns the transport tuning shared by every channel
func (c *Config) ChannelOptions() protocol.ChannelOptions {
	return protocol.ChannelOptions{
		ReadTimeout:     c.Channels.Serial.ReadTimeout,
		ReadBufferSize:  c.Channels.Serial.ReadBuffer,
		MaxDatagramSize: c.Channels.UDP.MaxDatagramSize,
		KeepAlive:       c.Channels.TCP.KeepAlive,
		KeepAlivePeriod: c.Channels.TCP.KeepAlivePeriod,
		DialTimeout:     c.Channels.TCP.DialTimeout,
	}
}

// ConfigDefaults returns the values used for fields an open request omits
func (c *Config) ConfigDefaults() protocol.ConfigDefaults {
	stopBits, err := model.ParseStopBits(c.Channels.Serial.StopBits)
	if err != nil {
		stopBits = model.StopBitsOne
	}

	return protocol.ConfigDefaults{
		BaudRate:     c.Channels.Serial.BaudRate,
		DataBits:     c.Channels.Serial.DataBits,
		Parity:       model.Parity(strings.ToLower(c.Channels.Serial.Parity)),
		StopBits:     stopBits,
		FlowControl:  model.FlowControl(strings.ToLower(c.Channels.Serial.FlowControl)),
		TCPRole:      model.TCPRole(c.Channels.TCP.Role),
		LocalAddress: c.Channels.UDP.LocalAddress,
	}
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// GetDatabaseDSN returns the capture database connection string
func (c *Config) GetDatabaseDSN() string {
	return c.Capture.Database.DSN()
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
