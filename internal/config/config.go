package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"presyo-watcher/internal/logging"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Parser    ParserConfig    `mapstructure:"parser"`
	Trends    TrendsConfig    `mapstructure:"trends"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Location    string `mapstructure:"location"`
}

// DatabaseConfig selects and configures persistence.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs when integration runs fire.
type SchedulerConfig struct {
	Specs           []string `mapstructure:"specs"`
	Timezone        string   `mapstructure:"timezone"`
	RunOnStart      bool     `mapstructure:"run_on_start"`
	AdvisoryLockKey int64    `mapstructure:"advisory_lock_key"`
}

// SourceConfig describes where daily reports are published.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Templates      []string      `mapstructure:"templates"`
	ListingURL     string        `mapstructure:"listing_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Delay          time.Duration `mapstructure:"delay"`
	Timezone       string        `mapstructure:"timezone"`
}

// ParserConfig picks the line classifier preset.
type ParserConfig struct {
	Preset        string `mapstructure:"preset"`
	MinLineLength int    `mapstructure:"min_line_length"`
}

// TrendsConfig controls the history window and trend rules.
type TrendsConfig struct {
	WindowDays int    `mapstructure:"window_days"`
	TiePolicy  string `mapstructure:"tie_policy"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// MetricsConfig exposes the Prometheus endpoint during `run`.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRESYOWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "presyowatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.location", "NCR")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.specs", []string{"0 0 8 * * *", "0 0 */6 * * *"})
	v.SetDefault("scheduler.timezone", "Asia/Manila")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70727379))

	v.SetDefault("source.base_url", "https://www.da.gov.ph/wp-content/uploads")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("source.request_timeout", "30s")
	v.SetDefault("source.delay", "500ms")
	v.SetDefault("source.timezone", "Asia/Manila")

	v.SetDefault("parser.preset", "conservative")

	v.SetDefault("trends.window_days", 7)
	v.SetDefault("trends.tie_policy", "decreasing")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 10.0)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 1000)

	v.SetDefault("metrics.path", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Trends.WindowDays <= 0 {
		return fmt.Errorf("trends.window_days must be greater than zero")
	}
	switch strings.ToLower(c.Trends.TiePolicy) {
	case "", "decreasing", "stable":
	default:
		return fmt.Errorf("trends.tie_policy must be decreasing or stable, got %q", c.Trends.TiePolicy)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %s or %s, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Source.RequestTimeout <= 0 {
		return fmt.Errorf("source.request_timeout must be greater than zero")
	}
	if c.Source.Delay < 0 {
		return fmt.Errorf("source.delay cannot be negative")
	}
	if c.Parser.MinLineLength < 0 {
		return fmt.Errorf("parser.min_line_length cannot be negative")
	}
	for _, tz := range []string{c.Scheduler.Timezone, c.Source.Timezone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// SourceLocation returns the timezone report dates are interpreted in.
func (c *Config) SourceLocation() *time.Location {
	loc, err := time.LoadLocation(c.Source.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerLocation returns the timezone cron specs are evaluated in.
func (c *Config) SchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
