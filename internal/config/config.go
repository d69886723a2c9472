package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Relay    Relay  `yaml:"relay"`
	Redis    Redis  `yaml:"redis"`
	Client   Client `yaml:"client"`
}

type Relay struct {
	SendBuffer   int           `yaml:"send-buffer" env:"RELAY_SEND_BUFFER" env-default:"32"`
	PingInterval time.Duration `yaml:"ping-interval" env:"RELAY_PING_INTERVAL" env-default:"30s"`
	WriteTimeout time.Duration `yaml:"write-timeout" env:"RELAY_WRITE_TIMEOUT" env-default:"10s"`
}

type Redis struct {
	Enabled    bool          `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Host       string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port       string        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	OutcomeTTL time.Duration `yaml:"outcome-ttl" env:"REDIS_OUTCOME_TTL" env-default:"24h"`
}

type Client struct {
	RelayURL string `yaml:"relay-url" env:"CLIENT_RELAY_URL" env-default:"ws://localhost:9090/ws"`
}

// MustLoad - load all configurations in config.yml file, or from the environment when there is no file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}

		return config, config.Validate()
	}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, err
	}

	return config, config.Validate()
}

// Validate - rejects relay settings the websocket transport cannot run with.
func (that *Config) Validate() error {
	switch {
	case that.Relay.SendBuffer < 1:
		return fmt.Errorf("%w: relay.send-buffer must be at least 1, got %d", ErrInvalidConfig, that.Relay.SendBuffer)
	case that.Relay.PingInterval <= 0:
		return fmt.Errorf("%w: relay.ping-interval must be positive, got %s", ErrInvalidConfig, that.Relay.PingInterval)
	case that.Relay.WriteTimeout <= 0:
		return fmt.Errorf("%w: relay.write-timeout must be positive, got %s", ErrInvalidConfig, that.Relay.WriteTimeout)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
