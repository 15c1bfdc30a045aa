package neomodel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the connection settings and the element conventions shared by
// every component of a Graph.
type Config struct {
	// URI is the server address, e.g. "neo4j://localhost:7687" or
	// "http://localhost:8182".
	URI      string `mapstructure:"uri" yaml:"uri"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	// Database is the Neo4j database name.
	Database string `mapstructure:"database" yaml:"database"`
	// Graph is the Rexster graph name.
	Graph string `mapstructure:"graph" yaml:"graph"`

	// TypeVar is the vertex property holding the element type.
	TypeVar string `mapstructure:"type_var" yaml:"type_var"`
	// LabelVar is the key under which relationship labels are indexed.
	LabelVar string `mapstructure:"label_var" yaml:"label_var"`

	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfig returns a Config for a local server.
func DefaultConfig() *Config {
	return &Config{
		URI:      "neo4j://localhost:7687",
		Database: "neo4j",
		Graph:    "graph",
		TypeVar:  "element_type",
		LabelVar: "label",
		Timeout:  30 * time.Second,
		LogLevel: "info",
	}
}

// LoadConfig reads configuration from an optional YAML file and from
// NEOMODEL_* environment variables, over DefaultConfig. An empty path skips
// the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("uri", def.URI)
	v.SetDefault("username", def.Username)
	v.SetDefault("password", def.Password)
	v.SetDefault("database", def.Database)
	v.SetDefault("graph", def.Graph)
	v.SetDefault("type_var", def.TypeVar)
	v.SetDefault("label_var", def.LabelVar)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("NEOMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.URI == "" {
		errs = append(errs, errors.New("uri is required"))
	}
	if c.TypeVar == "" {
		errs = append(errs, errors.New("type_var is required"))
	}
	if c.LabelVar == "" {
		errs = append(errs, errors.New("label_var is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout cannot be negative"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, err
	}
	return l, nil
}
