// Package conf loads fleetwatch settings from a config file and the environment.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FLEETWATCH_DATABASE_TYPE.
const EnvPrefix = "FLEETWATCH"

// Settings is the root configuration.
type Settings struct {
	Log          LogSettings          `mapstructure:"log" json:"log" yaml:"log"`
	Database     DatabaseSettings     `mapstructure:"database" json:"database" yaml:"database"`
	AlertCache   AlertCacheSettings   `mapstructure:"alertcache" json:"alertCache" yaml:"alertcache"`
	Notification NotificationSettings `mapstructure:"notification" json:"notification" yaml:"notification"`
	WebServer    WebServerSettings    `mapstructure:"webserver" json:"webServer" yaml:"webserver"`
	Sentry       SentrySettings       `mapstructure:"sentry" json:"sentry" yaml:"sentry"`
}

type LogSettings struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
}

// DatabaseSettings selects the persistent store. Type is "sqlite" or "mysql".
type DatabaseSettings struct {
	Type string `mapstructure:"type" json:"type" yaml:"type"`
	Path string `mapstructure:"path" json:"path" yaml:"path"` // sqlite file
	DSN  string `mapstructure:"dsn" json:"-" yaml:"dsn"`      // mysql data source name
}

// AlertCacheSettings controls loading and agent reload behaviour.
type AlertCacheSettings struct {
	PageSize       int      `mapstructure:"pagesize" json:"pageSize" yaml:"pagesize"`
	ReloadTimeout  Duration `mapstructure:"reloadtimeout" json:"reloadTimeout" yaml:"reloadtimeout"`
	ReloadDebounce Duration `mapstructure:"reloaddebounce" json:"reloadDebounce" yaml:"reloaddebounce"`
	ReloadRate     float64  `mapstructure:"reloadrate" json:"reloadRate" yaml:"reloadrate"` // reloads per second
	LoadOnStartup  bool     `mapstructure:"loadonstartup" json:"loadOnStartup" yaml:"loadonstartup"`
}

type NotificationSettings struct {
	BufferSize           int          `mapstructure:"buffersize" json:"bufferSize" yaml:"buffersize"`
	HistoryRetentionDays int          `mapstructure:"historyretentiondays" json:"historyRetentionDays" yaml:"historyretentiondays"`
	MQTT                 MQTTSettings `mapstructure:"mqtt" json:"mqtt" yaml:"mqtt"`
}

type MQTTSettings struct {
	Enabled        bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Broker         string   `mapstructure:"broker" json:"broker" yaml:"broker"`
	Topic          string   `mapstructure:"topic" json:"topic" yaml:"topic"`
	ClientID       string   `mapstructure:"clientid" json:"clientId" yaml:"clientid"`
	Username       string   `mapstructure:"username" json:"username" yaml:"username"`
	Password       string   `mapstructure:"password" json:"-" yaml:"password"`
	QoS            byte     `mapstructure:"qos" json:"qos" yaml:"qos"`
	ConnectTimeout Duration `mapstructure:"connecttimeout" json:"connectTimeout" yaml:"connecttimeout"`
}

type WebServerSettings struct {
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen"`
}

type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" json:"-" yaml:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "fleetwatch.db")

	v.SetDefault("alertcache.pagesize", 500)
	v.SetDefault("alertcache.reloadtimeout", "60s")
	v.SetDefault("alertcache.reloaddebounce", "5s")
	v.SetDefault("alertcache.reloadrate", 10.0)
	v.SetDefault("alertcache.loadonstartup", true)

	v.SetDefault("notification.buffersize", 1000)
	v.SetDefault("notification.historyretentiondays", 30)
	v.SetDefault("notification.mqtt.enabled", false)
	v.SetDefault("notification.mqtt.topic", "fleetwatch/alerts")
	v.SetDefault("notification.mqtt.clientid", "fleetwatch")
	v.SetDefault("notification.mqtt.qos", 1)
	v.SetDefault("notification.mqtt.connecttimeout", "10s")

	v.SetDefault("webserver.listen", ":8080")

	v.SetDefault("sentry.enabled", false)
}

// Load reads settings from path (optional) and FLEETWATCH_* environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings the service cannot start with.
func (s *Settings) Validate() error {
	switch s.Database.Type {
	case "sqlite":
		if s.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "mysql":
		if s.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("unsupported database type %q", s.Database.Type)
	}
	if s.AlertCache.PageSize <= 0 {
		return fmt.Errorf("alertcache.pagesize must be positive, got %d", s.AlertCache.PageSize)
	}
	if s.Notification.MQTT.Enabled && s.Notification.MQTT.Broker == "" {
		return fmt.Errorf("notification.mqtt.broker is required when mqtt is enabled")
	}
	if s.Notification.MQTT.QoS > 2 {
		return fmt.Errorf("notification.mqtt.qos must be 0, 1 or 2")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}

// RetentionPeriod returns the condition log retention window, zero when disabled.
func (n NotificationSettings) RetentionPeriod() time.Duration {
	if n.HistoryRetentionDays <= 0 {
		return 0
	}
	return time.Duration(n.HistoryRetentionDays) * 24 * time.Hour
}
