package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/engine"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/feed"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Addr         string
	LogLevel     string
	LogDev       bool
	CatalogPath  string // empty: builtin catalog
	DefaultKiosk string
	DatabaseURL  string // empty: in-memory round history
	Rules        engine.Rules
	MQTT         MQTTConfig
}

type MQTTConfig struct {
	Broker      string // empty: feed disabled
	ClientID    string
	TopicPrefix string
	Codec       string
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	defaults := engine.DefaultRules()
	var err error

	cfg := Config{
		Addr:         str("ADDR", ":8080"),
		LogLevel:     str("LOG_LEVEL", "info"),
		CatalogPath:  os.Getenv("CATALOG_PATH"),
		DefaultKiosk: str("DEFAULT_KIOSK", "MAIN"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		MQTT: MQTTConfig{
			Broker:      os.Getenv("MQTT_BROKER"),
			ClientID:    str("MQTT_CLIENT_ID", "pose-reveal-kiosk"),
			TopicPrefix: str("MQTT_TOPIC_PREFIX", "kiosk"),
			Codec:       str("MQTT_CODEC", feed.CodecJSON),
		},
	}

	var e error
	cfg.LogDev, e = boolean("LOG_DEV", false)
	err = multierr.Append(err, e)
	cfg.Rules.Threshold, e = float("CONFIDENCE_THRESHOLD", defaults.Threshold)
	err = multierr.Append(err, e)
	cfg.Rules.FlashDuration, e = millis("FLASH_MS", defaults.FlashDuration)
	err = multierr.Append(err, e)
	cfg.Rules.RevealDuration, e = millis("REVEAL_MS", defaults.RevealDuration)
	err = multierr.Append(err, e)
	if err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, fmt.Errorf("ADDR is empty: %w", ErrInvalid))
	}
	if c.DefaultKiosk == "" {
		err = multierr.Append(err, fmt.Errorf("DEFAULT_KIOSK is empty: %w", ErrInvalid))
	}
	if c.Rules.Threshold < 0 || c.Rules.Threshold >= 1 {
		err = multierr.Append(err, fmt.Errorf("CONFIDENCE_THRESHOLD %v outside [0,1): %w", c.Rules.Threshold, ErrInvalid))
	}
	if c.Rules.FlashDuration <= 0 {
		err = multierr.Append(err, fmt.Errorf("FLASH_MS must be positive: %w", ErrInvalid))
	}
	if c.Rules.RevealDuration <= 0 {
		err = multierr.Append(err, fmt.Errorf("REVEAL_MS must be positive: %w", ErrInvalid))
	}
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, ErrInvalid))
	}
	if c.MQTT.Broker != "" && !feed.ValidCodec(c.MQTT.Codec) {
		err = multierr.Append(err, fmt.Errorf("MQTT_CODEC %q: %w", c.MQTT.Codec, ErrInvalid))
	}
	return err
}

func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func boolean(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s=%q: %w", key, v, ErrInvalid)
	}
	return b, nil
}

func float(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s=%q: %w", key, v, ErrInvalid)
	}
	return f, nil
}

func millis(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s=%q: %w", key, v, ErrInvalid)
	}
	return time.Duration(n) * time.Millisecond, nil
}
