// Package config loads the kiosk configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "2h" style strings
// in both YAML and environment variables.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Validation struct {
	// MaxValidations caps validations per usage window.
	MaxValidations int `yaml:"max_validations" env:"MAX_VALIDATIONS"`

	// Interval is the cooldown between validations for one card.
	Interval Duration `yaml:"interval" env:"INTERVAL"`

	// Duration is how long the relay stays energized per validation.
	Duration Duration `yaml:"duration" env:"DURATION"`

	// TouchlessDelay auto-validates admissible patrons after this
	// delay. 0 keeps validation manual.
	TouchlessDelay Duration `yaml:"touchless_delay" env:"TOUCHLESS_DELAY"`
}

type Failures struct {
	Threshold int      `yaml:"threshold" env:"THRESHOLD"`
	Lockout   Duration `yaml:"lockout" env:"LOCKOUT"`
}

type Barcode struct {
	Prefix     string   `yaml:"prefix" env:"PREFIX"`
	Length     int      `yaml:"length" env:"LENGTH"`
	FailBlocks []string `yaml:"fail_blocks" env:"FAIL_BLOCKS"`

	Admin []string `yaml:"admin" env:"ADMIN"`
	Debug []string `yaml:"debug" env:"DEBUG"`
}

type Directory struct {
	// URL is the base of the patron REST API.
	URL string `yaml:"url" env:"URL"`

	// SealedCredentials is the passphrase-sealed "key:secret" blob, as
	// produced by the --seal flag.
	SealedCredentials string `yaml:"sealed_credentials" env:"SEALED_CREDENTIALS"`
}

type Database struct {
	Path          string   `yaml:"path" env:"PATH"`
	ResetInterval Duration `yaml:"reset_interval" env:"RESET_INTERVAL"`
}

type Relay struct {
	// Device is the hidraw node of the relay strip.
	Device string `yaml:"device" env:"DEVICE"`
}

type Maintenance struct {
	TickInterval Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	IdleTimeout  Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

type Report struct {
	// Day of month the monthly report fires; 0 disables it.
	Day    int `yaml:"day" env:"DAY"`
	Hour   int `yaml:"hour" env:"HOUR"`
	Minute int `yaml:"minute" env:"MINUTE"`

	Dir        string   `yaml:"dir" env:"DIR"`
	From       string   `yaml:"from" env:"FROM"`
	Recipients []string `yaml:"recipients" env:"RECIPIENTS"`
	AWSRegion  string   `yaml:"aws_region" env:"AWS_REGION"`
}

type Config struct {
	Validation  Validation  `yaml:"validation" envPrefix:"PARKVAL_VALIDATION_"`
	Failures    Failures    `yaml:"failures" envPrefix:"PARKVAL_FAILURES_"`
	Barcode     Barcode     `yaml:"barcode" envPrefix:"PARKVAL_BARCODE_"`
	Directory   Directory   `yaml:"directory" envPrefix:"PARKVAL_DIRECTORY_"`
	Database    Database    `yaml:"database" envPrefix:"PARKVAL_DATABASE_"`
	Relay       Relay       `yaml:"relay" envPrefix:"PARKVAL_RELAY_"`
	Maintenance Maintenance `yaml:"maintenance" envPrefix:"PARKVAL_MAINTENANCE_"`
	Report      Report      `yaml:"report" envPrefix:"PARKVAL_REPORT_"`
}

// Default returns the deployment defaults: two validations per day,
// two hours apart, five failures before a five-second lockout.
func Default() Config {
	return Config{
		Validation: Validation{
			MaxValidations: 2,
			Interval:       Duration(2 * time.Hour),
			Duration:       Duration(10 * time.Second),
		},
		Failures: Failures{
			Threshold: 5,
			Lockout:   Duration(5 * time.Second),
		},
		Barcode: Barcode{
			Prefix:     "2194500",
			Length:     14,
			FailBlocks: []string{"g"},
		},
		Database: Database{
			Path:          "./data/parkval.db",
			ResetInterval: Duration(24 * time.Hour),
		},
		Maintenance: Maintenance{
			TickInterval: Duration(5 * time.Second),
			IdleTimeout:  Duration(30 * time.Second),
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty),
// applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Validation.MaxValidations < 1 {
		return fmt.Errorf("validation.max_validations must be at least 1")
	}
	if c.Validation.Interval < 0 || c.Validation.Duration <= 0 {
		return fmt.Errorf("validation intervals must be positive")
	}
	if c.Failures.Threshold < 1 {
		return fmt.Errorf("failures.threshold must be at least 1")
	}
	if c.Failures.Lockout <= 0 {
		return fmt.Errorf("failures.lockout must be positive")
	}
	if c.Barcode.Prefix == "" || c.Barcode.Length <= len(c.Barcode.Prefix) {
		return fmt.Errorf("barcode.length must exceed the prefix length")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Report.Day < 0 || c.Report.Day > 28 {
		return fmt.Errorf("report.day must be between 0 and 28")
	}
	if c.Report.Hour < 0 || c.Report.Hour > 23 || c.Report.Minute < 0 || c.Report.Minute > 59 {
		return fmt.Errorf("report schedule must be a valid time of day")
	}
	if c.Report.Day > 0 && (c.Report.From == "" || len(c.Report.Recipients) == 0) {
		return fmt.Errorf("report delivery requires report.from and report.recipients")
	}
	return nil
}
