package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/telemetry"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ENV_PREFIX      = "gridpoll"
	ENV_CONFIG_FILE = "CONFIG_FILE"
	REDACTED        = "*redacted*"
)

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

type Config struct {
	LogLevel           zapcore.Level       `mapstructure:"-"`
	Port               uint                `mapstructure:"port"`
	HttpLog            bool                `mapstructure:"http_log"`
	FetchTimeout       time.Duration       `mapstructure:"fetch_timeout"`
	SetupRetryInterval time.Duration       `mapstructure:"setup_retry_interval"`
	MQTT               MQTTConfig          `mapstructure:"mqtt"`
	Telemetry          telemetry.Config    `mapstructure:"telemetry"`
	Integrations       []IntegrationConfig `mapstructure:"integrations"`
}

type MQTTConfig struct {
	Host                 string
	Port                 int
	Username             string
	Password             string
	BaseTopic            string        `mapstructure:"base_topic"`
	HADiscoveryEnable    bool          `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic     string        `mapstructure:"ha_discovery_topic"`
	HADiscoveryInterval  time.Duration `mapstructure:"ha_discovery_interval"`
	StateRefreshInterval time.Duration `mapstructure:"state_refresh_interval"`
}

// IntegrationConfig is one configured upstream integration. Which fields
// apply depends on the vendor.
type IntegrationConfig struct {
	Name         string
	Title        string
	Vendor       string
	EntryId      string `mapstructure:"entry_id"`
	Host         string
	Port         uint
	Username     string
	Password     string
	Email        string
	PublicKey    string        `mapstructure:"public_key"`
	DeviceId     string        `mapstructure:"device_id"`
	UnitId       uint8         `mapstructure:"unit_id"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	Connections  []string
	Options      map[string]string
	Endpoints    map[string]string
}

func (c IntegrationConfig) Entry() domain.IntegrationEntry {
	title := c.Title
	if title == "" {
		title = c.Name
	}
	return domain.IntegrationEntry{
		Name:         c.Name,
		Title:        title,
		EntryId:      c.EntryId,
		Vendor:       c.Vendor,
		ScanInterval: c.ScanInterval,
		Connection: domain.ConnectionConfig{
			Host:        c.Host,
			Port:        c.Port,
			UnitId:      c.UnitId,
			Username:    c.Username,
			Password:    c.Password,
			Email:       c.Email,
			PublicKey:   c.PublicKey,
			DeviceId:    c.DeviceId,
			RateLimit:   c.RateLimit,
			Connections: slices.Clone(c.Connections),
			Options:     c.Options,
			Endpoints:   c.Endpoints,
		},
	}
}

// Load reads the configuration from the environment and, when CONFIG_FILE
// names an existing file, from that YAML file. PORT is an alias of
// GRIDPOLL_PORT.
func Load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if port := os.Getenv("PORT"); port != "" && os.Getenv("GRIDPOLL_PORT") == "" {
		_ = v.BindEnv("port", "PORT")
	}
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := os.Getenv(ENV_CONFIG_FILE); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
			}
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("fetch_timeout", 10*time.Second)
	v.SetDefault("setup_retry_interval", 60*time.Second)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "gridpoll")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("mqtt.ha_discovery_interval", 10*time.Minute)
	v.SetDefault("mqtt.state_refresh_interval", 5*time.Minute)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.metric_interval", 30*time.Second)
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// Validate checks bounds and normalizes topics and names in place.
func (cfg *Config) Validate() error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadTopic

	if cfg.FetchTimeout < time.Second {
		return errors.New("config param fetch_timeout should be >= 1s")
	}
	if cfg.SetupRetryInterval < time.Second {
		return errors.New("config param setup_retry_interval should be >= 1s")
	}
	if cfg.MQTT.HADiscoveryEnable && cfg.MQTT.HADiscoveryInterval < time.Minute {
		return errors.New("config param mqtt.ha_discovery_interval should be >= 1m")
	}
	if cfg.MQTT.StateRefreshInterval <= 0 {
		return errors.New("config param mqtt.state_refresh_interval should be > 0")
	}

	seen := map[string]bool{}
	for i := range cfg.Integrations {
		in := &cfg.Integrations[i]
		name, err := CheckMQTTTopic(in.Name)
		if err != nil {
			return fmt.Errorf("integrations[%d]: invalid name %q. can only contain letters, numbers and underscores", i, in.Name)
		}
		in.Name = name
		if seen[name] {
			return fmt.Errorf("integrations[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		in.Vendor = strings.ToLower(in.Vendor)
		if in.Vendor == "" {
			return fmt.Errorf("integration %s: vendor is required", name)
		}
		if in.ScanInterval < 0 {
			return fmt.Errorf("integration %s: scan_interval must not be negative", name)
		}
		if in.RateLimit < 0 {
			return fmt.Errorf("integration %s: rate_limit must not be negative", name)
		}
	}
	return nil
}

func CheckMQTTTopic(topic string) (string, error) {
	lower := strings.ToLower(topic)
	if !topicRegexp.MatchString(lower) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lower, nil
}

// Redacted returns a copy safe to print: MQTT and integration secrets are
// replaced.
func (cfg Config) Redacted() Config {
	out := cfg
	out.MQTT.Username = redact(cfg.MQTT.Username)
	out.MQTT.Password = redact(cfg.MQTT.Password)
	out.Integrations = make([]IntegrationConfig, len(cfg.Integrations))
	for i, in := range cfg.Integrations {
		in.Username = redact(in.Username)
		in.Password = redact(in.Password)
		in.Email = redact(in.Email)
		in.PublicKey = redact(in.PublicKey)
		out.Integrations[i] = in
	}
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return REDACTED
}
