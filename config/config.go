// Package config loads the stationlink configuration and persists the
// operator's last choices between restarts.
//
// Static configuration comes from a file and STATIONLINK_* environment
// variables through viper. The settings an operator changes at runtime (the
// selected station or side and the broker connection) live in a Store.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ambitiousfew/stationlink/topic"
	"github.com/spf13/viper"
)

// Transport kinds.
const (
	TransportMQTT     = "mqtt"
	TransportAMQP     = "amqp"
	TransportKafka    = "kafka"
	TransportLoopback = "loopback"
)

// Settings drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverNone   = "none"
)

type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Station   StationConfig   `mapstructure:"station"`
	Client    ClientConfig    `mapstructure:"client"`
	Log       LogConfig       `mapstructure:"log"`
	Settings  SettingsConfig  `mapstructure:"settings"`
}

type TransportConfig struct {
	Kind      string        `mapstructure:"kind"`
	Address   string        `mapstructure:"address"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	ClientID  string        `mapstructure:"client_id"`
	TLS       TLSConfig     `mapstructure:"tls"`
	Exchange  string        `mapstructure:"exchange"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	// ReconnectDelay is the wait before connecting again, doubled after each
	// failed attempt up to MaxReconnectDelay.
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	// LostAfter is how long the connection may be down before it is torn down
	// and dialed again.
	LostAfter time.Duration `mapstructure:"lost_after"`
}

type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CAFile             string `mapstructure:"ca_file"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type StationConfig struct {
	// Namespace is the addressing scheme, "station" or "side".
	Namespace  string `mapstructure:"namespace"`
	Root       string `mapstructure:"root"`
	Identifier string `mapstructure:"identifier"`
	// Broadcast is the name of the shared broadcast, e.g. "top10".
	Broadcast string `mapstructure:"broadcast"`
}

type ClientConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	CorrelationIDs bool          `mapstructure:"correlation_ids"`
	// PublishRate is requests per second, 0 disables the limit.
	PublishRate  float64 `mapstructure:"publish_rate"`
	PublishBurst int     `mapstructure:"publish_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type SettingsConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// Load reads the configuration file at path, when path is not empty, and
// applies STATIONLINK_* environment overrides such as STATIONLINK_TRANSPORT_ADDRESS.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("stationlink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// every key needs a default for AutomaticEnv to pick up its variable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", TransportMQTT)
	v.SetDefault("transport.address", "localhost")
	v.SetDefault("transport.port", 0)
	v.SetDefault("transport.username", "")
	v.SetDefault("transport.password", "")
	v.SetDefault("transport.client_id", "")
	v.SetDefault("transport.tls.enabled", false)
	v.SetDefault("transport.tls.ca_file", "")
	v.SetDefault("transport.tls.cert_file", "")
	v.SetDefault("transport.tls.key_file", "")
	v.SetDefault("transport.tls.insecure_skip_verify", false)
	v.SetDefault("transport.exchange", "amq.topic")
	v.SetDefault("transport.op_timeout", "2s")
	v.SetDefault("transport.reconnect_delay", "1s")
	v.SetDefault("transport.max_reconnect_delay", "30s")
	v.SetDefault("transport.lost_after", "15s")

	v.SetDefault("station.namespace", topic.KindStation.String())
	v.SetDefault("station.root", "leaderboard")
	v.SetDefault("station.identifier", "1")
	v.SetDefault("station.broadcast", "top10")

	v.SetDefault("client.timeout", "3s")
	v.SetDefault("client.correlation_ids", false)
	v.SetDefault("client.publish_rate", 0)
	v.SetDefault("client.publish_burst", 1)

	v.SetDefault("log.level", "info")

	v.SetDefault("settings.driver", DriverFile)
	v.SetDefault("settings.path", "stationlink-settings.yaml")
}

func (c Config) Validate() error {
	switch c.Transport.Kind {
	case TransportMQTT, TransportAMQP, TransportKafka:
		if c.Transport.Address == "" {
			return fmt.Errorf("transport.address is required for %s", c.Transport.Kind)
		}
	case TransportLoopback:
	default:
		return fmt.Errorf("transport.kind %q is not one of mqtt, amqp, kafka, loopback", c.Transport.Kind)
	}

	if c.Transport.Port < 0 || c.Transport.Port > 65535 {
		return fmt.Errorf("transport.port %d is out of range", c.Transport.Port)
	}

	if c.Transport.ReconnectDelay <= 0 || c.Transport.MaxReconnectDelay < c.Transport.ReconnectDelay {
		return fmt.Errorf("transport.reconnect_delay must be positive and at most transport.max_reconnect_delay")
	}
	if c.Transport.LostAfter <= 0 {
		return fmt.Errorf("transport.lost_after must be positive")
	}

	if _, err := c.Namespace(); err != nil {
		return fmt.Errorf("station: %w", err)
	}
	if c.Station.Broadcast == "" {
		return fmt.Errorf("station.broadcast is required")
	}

	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive")
	}
	if c.Client.PublishRate < 0 {
		return fmt.Errorf("client.publish_rate must not be negative")
	}

	switch c.Settings.Driver {
	case DriverFile, DriverSQLite:
		if c.Settings.Path == "" {
			return fmt.Errorf("settings.path is required for the %s driver", c.Settings.Driver)
		}
	case DriverNone:
	default:
		return fmt.Errorf("settings.driver %q is not one of file, sqlite, none", c.Settings.Driver)
	}
	return nil
}

// Namespace builds the topic namespace the station section describes.
func (c Config) Namespace() (topic.Namespace, error) {
	kind, err := topic.ParseKind(c.Station.Namespace)
	if err != nil {
		return nil, err
	}
	return topic.Parse(kind, c.Station.Root, c.Station.Identifier)
}

// Apply overlays persisted settings on the configuration. Empty settings
// fields keep the configured value.
func (c *Config) Apply(s Settings) {
	if s.Identifier != "" {
		c.Station.Identifier = s.Identifier
	}
	if s.Transport.Address != "" {
		c.Transport.Address = s.Transport.Address
	}
	if s.Transport.Port != 0 {
		c.Transport.Port = s.Transport.Port
	}
	if s.Transport.Username != "" {
		c.Transport.Username = s.Transport.Username
	}
	if s.Transport.Password != "" {
		c.Transport.Password = s.Transport.Password
	}
}
