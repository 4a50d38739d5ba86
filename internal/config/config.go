package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvKey string

const (
	EnvPort      EnvKey = "PORT"
	EnvLogDebug  EnvKey = "LOG_DEBUG"
	EnvReadDelay EnvKey = "READ_DELAY"

	EnvSessionTTL   EnvKey = "SESSION_TTL"
	EnvSweepPeriod  EnvKey = "SESSION_SWEEP_PERIOD"
	EnvMaxImageSize EnvKey = "MAX_IMAGE_SIZE"

	EnvHapEnabled EnvKey = "HAP_ENABLED"
	EnvHapPin     EnvKey = "HAP_PIN"
	EnvHapDBDir   EnvKey = "HAP_DB_DIR"

	EnvNtfyURL EnvKey = "NTFY_URL"

	EnvMQTTBroker      EnvKey = "MQTT_BROKER"
	EnvMQTTClientID    EnvKey = "MQTT_CLIENT_ID"
	EnvMQTTUsername    EnvKey = "MQTT_USERNAME"
	EnvMQTTPassword    EnvKey = "MQTT_PASSWORD"
	EnvMQTTTopicPrefix EnvKey = "MQTT_TOPIC_PREFIX"

	EnvMetricsRetention EnvKey = "METRICS_RETENTION"
	EnvMetricsDump      EnvKey = "METRICS_DUMP"
)

type Config struct {
	Port      int
	LogDebug  bool
	ReadDelay time.Duration

	SessionTTL   time.Duration
	SweepPeriod  time.Duration
	MaxImageSize int64

	HapEnabled bool
	HapPin     string
	HapDBDir   string

	// empty URL turns notifications off
	NtfyURL string

	// empty broker turns MQTT events off
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	MetricsRetention time.Duration
	MetricsDump      string
}

func New() (*Config, error) {
	env := &envReader{}

	c := &Config{
		Port:      env.getInt(EnvPort, 8080),
		LogDebug:  env.getBool(EnvLogDebug, false),
		ReadDelay: env.getDuration(EnvReadDelay, time.Second),

		SessionTTL:   env.getDuration(EnvSessionTTL, 30*time.Minute),
		SweepPeriod:  env.getDuration(EnvSweepPeriod, time.Minute),
		MaxImageSize: int64(env.getInt(EnvMaxImageSize, 10<<20)),

		HapEnabled: env.getBool(EnvHapEnabled, false),
		HapPin:     env.getString(EnvHapPin, ""),
		HapDBDir:   env.getString(EnvHapDBDir, "./db"),

		NtfyURL: env.getString(EnvNtfyURL, ""),

		MQTTBroker:      env.getString(EnvMQTTBroker, ""),
		MQTTClientID:    env.getString(EnvMQTTClientID, "plantdash"),
		MQTTUsername:    env.getString(EnvMQTTUsername, ""),
		MQTTPassword:    env.getString(EnvMQTTPassword, ""),
		MQTTTopicPrefix: env.getString(EnvMQTTTopicPrefix, "plantdash"),

		MetricsRetention: env.getDuration(EnvMetricsRetention, 24*time.Hour),
		MetricsDump:      env.getString(EnvMetricsDump, ""),
	}

	if err := env.err(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %s: %d", EnvPort, c.Port)
	}

	if c.SweepPeriod <= 0 {
		return fmt.Errorf("invalid %s: %s", EnvSweepPeriod, c.SweepPeriod)
	}

	if c.MaxImageSize <= 0 {
		return fmt.Errorf("invalid %s: %d", EnvMaxImageSize, c.MaxImageSize)
	}

	// HomeKit setup codes are 8 digits
	if c.HapPin != "" {
		if len(c.HapPin) != 8 || strings.Trim(c.HapPin, "0123456789") != "" {
			return fmt.Errorf("invalid %s: must be 8 digits", EnvHapPin)
		}
	}

	return nil
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// envReader reads typed env values and remembers every malformed one.
type envReader struct {
	errs []error
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) fail(key EnvKey, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, val, err))
}

func (e *envReader) getString(key EnvKey, defaultVal string) string {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	return val
}

func (e *envReader) getBool(key EnvKey, defaultVal bool) bool {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		e.fail(key, val, err)

		return defaultVal
	}

	return b
}

func (e *envReader) getInt(key EnvKey, defaultVal int) int {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		e.fail(key, val, err)

		return defaultVal
	}

	return n
}

func (e *envReader) getDuration(key EnvKey, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(string(key))
	if !exists {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		e.fail(key, val, err)

		return defaultVal
	}

	return d
}
