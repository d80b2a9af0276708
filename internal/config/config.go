// Package config loads the static settings of warehouse-stats from an optional
// YAML file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
)

const (
	DefaultParallelism = 4
	MaxParallelism     = 64
)

// Config is the top-level configuration
type Config struct {
	Warehouse   WarehouseConfig `yaml:"warehouse"`
	Schemas     []string        `yaml:"schemas,omitempty"`
	Parallelism int             `yaml:"parallelism,omitempty"`
	Logging     LogConfig       `yaml:"logging,omitempty"`
}

// WarehouseConfig holds the connection settings
type WarehouseConfig struct {
	Driver       string        `yaml:"driver"` // snowflake or mysql
	Account      string        `yaml:"account,omitempty"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Warehouse    string        `yaml:"warehouse,omitempty"`
	Database     string        `yaml:"database"`
	Role         string        `yaml:"role,omitempty"`
	Host         string        `yaml:"host,omitempty"`
	Port         string        `yaml:"port,omitempty"`
	LoginTimeout time.Duration `yaml:"login_timeout,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolve secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Override copies every non-zero field of o over c
func (c *Config) Override(o Config) {
	w := &c.Warehouse
	set(&w.Driver, o.Warehouse.Driver)
	set(&w.Account, o.Warehouse.Account)
	set(&w.User, o.Warehouse.User)
	set(&w.Password, o.Warehouse.Password)
	set(&w.Warehouse, o.Warehouse.Warehouse)
	set(&w.Database, o.Warehouse.Database)
	set(&w.Role, o.Warehouse.Role)
	set(&w.Host, o.Warehouse.Host)
	set(&w.Port, o.Warehouse.Port)
	if o.Warehouse.LoginTimeout > 0 {
		w.LoginTimeout = o.Warehouse.LoginTimeout
	}
	if len(o.Schemas) > 0 {
		c.Schemas = o.Schemas
	}
	if o.Parallelism > 0 {
		c.Parallelism = o.Parallelism
	}
	set(&c.Logging.Level, o.Logging.Level)
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ApplyEnv fills settings the file and flags left empty from the environment,
// then applies defaults. Connection fields are left to the connector, which
// reads SNOWFLAKE_* or MYSQL_* for its driver.
func (c *Config) ApplyEnv() {
	if c.Warehouse.Driver == "" {
		c.Warehouse.Driver = os.Getenv("WAREHOUSE_DRIVER")
	}
	if len(c.Schemas) == 0 {
		c.Schemas = SplitList(os.Getenv("WAREHOUSE_SCHEMAS"))
	}
	if c.Parallelism == 0 {
		if n, err := strconv.Atoi(os.Getenv("WAREHOUSE_PARALLELISM")); err == nil {
			c.Parallelism = n
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = os.Getenv("WAREHOUSE_LOG_LEVEL")
	}

	if c.Parallelism == 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.Parallelism > MaxParallelism {
		c.Parallelism = MaxParallelism
	}
}

// Validate checks the settings that do not depend on the warehouse being reachable
func (c *Config) Validate() error {
	if _, err := connector.DialectFor(c.Warehouse.Driver); err != nil {
		return fmt.Errorf("warehouse.driver: %w", err)
	}
	for _, schema := range c.Schemas {
		if !connector.ValidIdentifier(schema) {
			return fmt.Errorf("schemas: %w: %q", connector.ErrInvalidIdentifier, schema)
		}
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	if c.Warehouse.Port != "" {
		if _, err := strconv.Atoi(c.Warehouse.Port); err != nil {
			return fmt.Errorf("warehouse.port %q is not a number", c.Warehouse.Port)
		}
	}
	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// ConnectorConfig returns the connection settings in the connector's form
func (c *Config) ConnectorConfig() connector.Config {
	w := c.Warehouse
	return connector.Config{
		Driver:       w.Driver,
		Account:      w.Account,
		User:         w.User,
		Password:     w.Password,
		Warehouse:    w.Warehouse,
		Database:     w.Database,
		Role:         w.Role,
		Host:         w.Host,
		Port:         w.Port,
		LoginTimeout: w.LoginTimeout,
	}
}

var secretPattern = regexp.MustCompile(`^\$\{ENV:([^}]+)\}$`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Warehouse.User, err = ResolveValue(c.Warehouse.User)
	if err != nil {
		return fmt.Errorf("warehouse user: %w", err)
	}
	c.Warehouse.Password, err = ResolveValue(c.Warehouse.Password)
	if err != nil {
		return fmt.Errorf("warehouse password: %w", err)
	}
	return nil
}

// ResolveValue replaces a ${ENV:NAME} reference with the variable's value
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return val, nil
	}
	v := os.Getenv(matches[1])
	if v == "" {
		return "", fmt.Errorf("environment variable %s not set", matches[1])
	}
	return v, nil
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
