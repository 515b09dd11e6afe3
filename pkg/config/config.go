package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvString is a yaml string that may be an "${ENV_VAR}" placeholder, resolved
// against the process environment at load time. Secrets (root key, node
// macaroon) are supplied this way instead of being written into the file.
type EnvString string

var envVarRegex = regexp.MustCompile(`^\$\{([^}]+)\}$`)

func (e *EnvString) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}

	matches := envVarRegex.FindStringSubmatch(raw)
	if len(matches) > 1 {
		envValue, exists := os.LookupEnv(matches[1])
		if !exists {
			return fmt.Errorf("environment variable %s not set", matches[1])
		}

		*e = EnvString(envValue)

		return nil
	}

	*e = EnvString(raw)

	return nil
}

type Token struct {
	LifeTime time.Duration `yaml:"lifeTime"`
}

func (t *Token) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var tmp struct {
		LifeTime string `yaml:"lifeTime"`
	}

	if err := unmarshal(&tmp); err != nil {
		return err
	}

	duration, err := time.ParseDuration(tmp.LifeTime)
	if err != nil {
		return fmt.Errorf("error parsing token lifetime: %v", err)
	}

	t.LifeTime = duration

	return nil
}

type Lnd struct {
	RestURL  EnvString `yaml:"restUrl"`
	Macaroon EnvString `yaml:"macaroon"`
}

type Pricing struct {
	APIAccessFee     int64 `yaml:"apiAccessFee"`
	DefaultJobReward int64 `yaml:"defaultJobReward"`
	MinJobReward     int64 `yaml:"minJobReward"`
}

type AppConfig struct {
	ListenAddress  string    `yaml:"listenAddress"`
	Realm          string    `yaml:"realm"`
	Action         string    `yaml:"action"`
	RootKey        EnvString `yaml:"rootKey"`
	Token          Token     `yaml:"token"`
	Lnd            Lnd       `yaml:"lnd"`
	Pricing        Pricing   `yaml:"pricing"`
	DatabasePath   string    `yaml:"databasePath"`
	MigrationsPath string    `yaml:"migrationsPath"`
}

func GetAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.RootKey == "" {
		return fmt.Errorf("rootKey must be configured")
	}

	if c.Lnd.RestURL == "" {
		return fmt.Errorf("lnd.restUrl must be configured")
	}

	if c.ListenAddress == "" {
		c.ListenAddress = "0.0.0.0:8080"
	}

	if c.Realm == "" {
		c.Realm = "ganamos-posts"
	}

	if c.Action == "" {
		c.Action = "create_post"
	}

	if c.Token.LifeTime == 0 {
		c.Token.LifeTime = time.Hour
	}

	if c.Pricing.DefaultJobReward == 0 {
		c.Pricing.DefaultJobReward = 1000
	}

	if c.Pricing.APIAccessFee == 0 {
		c.Pricing.APIAccessFee = 10
	}

	if c.DatabasePath == "" {
		c.DatabasePath = "./ganamos.db"
	}

	if c.MigrationsPath == "" {
		c.MigrationsPath = "./migrations"
	}

	return nil
}
