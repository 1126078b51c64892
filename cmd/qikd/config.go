package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	log "github.com/sirupsen/logrus"
	"github.com/speters/qikd/qik"
	"gopkg.in/yaml.v3"
)

// Settings can be given in the config file and overridden by environment variables
type Settings struct {
	Link     string `yaml:"link" env:"QIKD_LINK"`
	Baud     int    `yaml:"baud" env:"QIKD_BAUD"`
	ResetPin int    `yaml:"reset_pin" env:"QIKD_RESET_PIN"`
	HTTP     string `yaml:"http" env:"QIKD_HTTP"`
	LogLevel string `yaml:"log_level" env:"QIKD_LOG_LEVEL"`
}

// InitConfig holds device parameters written after Begin. Unset values are left alone.
type InitConfig struct {
	DeviceID        *uint8 `yaml:"device_id"`
	PWM             *uint8 `yaml:"pwm"`
	ShutdownOnError *bool  `yaml:"shutdown_on_error"`
	SerialTimeout   *uint8 `yaml:"serial_timeout"`
}

// Config is the daemon configuration
type Config struct {
	Settings `yaml:",inline"`
	Init     InitConfig `yaml:"init"`
}

func defaultConfig() *Config {
	return &Config{Settings: Settings{
		Baud:     qik.DefaultBaud,
		ResetPin: -1,
		LogLevel: "info",
	}}
}

// loadConfig reads defaults, then the yaml file at path (if any), then the environment
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config %v: %w", path, err)
		}
	}

	if err := env.Parse(&cfg.Settings); err != nil {
		return nil, fmt.Errorf("could not parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) logLevel() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(c.LogLevel)
}

// applyInit writes the configured device parameters, failing on the first rejected value
func applyInit(q *qik.Qik, ic InitConfig) error {
	type setting struct {
		p   qik.ConfigParam
		v   *uint8
		set func(uint8) (bool, error)
	}
	var shutdown *uint8
	if ic.ShutdownOnError != nil {
		b := uint8(0)
		if *ic.ShutdownOnError {
			b = 1
		}
		shutdown = &b
	}
	for _, s := range []setting{
		{qik.ConfigDeviceID, ic.DeviceID, q.SetDeviceID},
		{qik.ConfigPWM, ic.PWM, func(v uint8) (bool, error) { return q.SetPWMParameter(qik.PWMMode(v)) }},
		{qik.ConfigShutdownOnError, shutdown, func(v uint8) (bool, error) { return q.SetShutdownOnError(v == 1) }},
		{qik.ConfigSerialTimeout, ic.SerialTimeout, q.SetSerialTimeout},
	} {
		if s.v == nil {
			continue
		}
		ok, err := s.set(*s.v)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("device rejected %v=%v", s.p, *s.v)
		}
		log.Infof("Set %v to %v", s.p, *s.v)
	}
	return nil
}
