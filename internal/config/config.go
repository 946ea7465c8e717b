package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full formfill configuration
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Fill    FillConfig    `mapstructure:"fill" yaml:"fill"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
}

// LoggerConfig configures zap output and optional file rotation
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color per level
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig selects and launches the browser
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver" yaml:"driver"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Width             int           `mapstructure:"width" yaml:"width"`
	Height            int           `mapstructure:"height" yaml:"height"`
	ProfileDir        string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	Bin               string        `mapstructure:"bin" yaml:"bin"`
	ConnectURL        string        `mapstructure:"connect_url" yaml:"connect_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	EvalTimeout       time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout"`
}

// LLMConfig configures the data provider
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
}

// FillConfig bounds the fill loop and widget waits
type FillConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	ObserveWindow time.Duration `mapstructure:"observe_window" yaml:"observe_window"`
	WidgetTimeout time.Duration `mapstructure:"widget_timeout" yaml:"widget_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// StoreConfig locates the credential and exchange file
type StoreConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	RecordExchange bool   `mapstructure:"record_exchange" yaml:"record_exchange"`
}

// CaptureConfig enables failure snapshots when Dir is set
type CaptureConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	MaxWidth int    `mapstructure:"max_width" yaml:"max_width"`
	Timeline bool   `mapstructure:"timeline" yaml:"timeline"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formfill")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.driver", "rod")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 800)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.connect_url", "")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.idle_timeout", "5s")
	v.SetDefault("browser.ready_timeout", "10s")
	v.SetDefault("browser.eval_timeout", "15s")

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.0)

	// -- Fill --
	v.SetDefault("fill.max_attempts", 3)
	v.SetDefault("fill.observe_window", "5s")
	v.SetDefault("fill.widget_timeout", "2s")
	v.SetDefault("fill.settle_delay", "300ms")
	v.SetDefault("fill.poll_interval", "100ms")

	// -- Store --
	v.SetDefault("store.path", "~/.formfill/state.json")
	v.SetDefault("store.record_exchange", true)

	// -- Capture --
	v.SetDefault("capture.dir", "")
	v.SetDefault("capture.max_width", 800)
	v.SetDefault("capture.timeline", false)
}

// Load prepares v to read cfgFile (or ./formfill.yaml, ~/.formfill/config.yaml)
// plus FORMFILL_* environment variables, then builds the configuration.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.formfill")
		v.SetConfigName("formfill")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FORMFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates the configuration held by v
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "rod", "chromedp":
	default:
		return fmt.Errorf("browser.driver must be rod or chromedp, got %q", c.Browser.Driver)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}
	if c.Browser.EvalTimeout <= 0 {
		return fmt.Errorf("browser.eval_timeout must be positive")
	}
	if c.Fill.MaxAttempts < 1 || c.Fill.MaxAttempts > 10 {
		return fmt.Errorf("fill.max_attempts must be between 1 and 10")
	}
	if c.Fill.ObserveWindow <= 0 {
		return fmt.Errorf("fill.observe_window must be positive")
	}
	if c.Fill.WidgetTimeout <= 0 {
		return fmt.Errorf("fill.widget_timeout must be positive")
	}
	if c.Fill.SettleDelay < 0 {
		return fmt.Errorf("fill.settle_delay must not be negative")
	}
	if c.Fill.PollInterval <= 0 || c.Fill.PollInterval > c.Fill.WidgetTimeout {
		return fmt.Errorf("fill.poll_interval must be positive and at most fill.widget_timeout")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be a positive integer")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.Capture.MaxWidth < 0 {
		return fmt.Errorf("capture.max_width must not be negative")
	}
	return nil
}
