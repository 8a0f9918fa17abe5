package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// PathEnv overrides the config file location.
const PathEnv = "Z3MCP_CONFIG"

type Config struct {
	Log           Log           `yaml:"log"`
	Server        Server        `yaml:"server"`
	Solver        Solver        `yaml:"solver"`
	Relationships Relationships `yaml:"relationships"`
}

type Log struct {
	// Minimum log level
	Level string `yaml:"level" example:"info" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type Server struct {
	// MCP server name reported during initialization
	Name string `yaml:"name" example:"z3-server" validate:"required"`
	// MCP server version reported during initialization
	Version string `yaml:"version" example:"0.1.0" validate:"required"`
	// Transports to serve: stdio, http or both
	Transport string `yaml:"transport" example:"stdio" validate:"oneof=stdio http both"`
	// HTTP transport config
	HTTP HTTP `yaml:"http"`
}

type HTTP struct {
	// Listen address of the HTTP API and the streamable MCP endpoint
	Addr string `yaml:"addr" example:":8080" validate:"required"`
}

type Solver struct {
	// Solver engine: auto, z3 or sat
	Engine string `yaml:"engine" example:"auto" validate:"oneof=auto z3 sat"`
	// Per-check timeout, negative disables it
	Timeout time.Duration `yaml:"timeout" example:"30s"`
	// Maximum number of variables per problem, zero means unlimited
	MaxVariables int `yaml:"max_variables" example:"1000" validate:"gte=0"`
	// Maximum number of constraints per problem, zero means unlimited
	MaxConstraints int `yaml:"max_constraints" example:"10000" validate:"gte=0"`
	// Maximum length in bytes of a single constraint or query expression
	MaxExpressionLength int `yaml:"max_expression_length" example:"65536" validate:"gte=0"`
	// Maximum number of checks running at once, defaults to the number of CPUs
	MaxConcurrent int `yaml:"max_concurrent" example:"4" validate:"gte=0"`
}

type Relationships struct {
	// Relations whose facts hold in both directions
	Symmetric []string `yaml:"symmetric" example:"[sibling, spouse]"`
	// Relations closed under composition
	Transitive []string `yaml:"transitive" example:"[ancestor, before]"`
	// Maximum number of distinct entities per query
	MaxEntities int `yaml:"max_entities" example:"40" validate:"gte=1"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var result Config
	applyDefaults(&result)
	return &result
}

// Load reads the config file named by Z3MCP_CONFIG, or config.yaml.
func Load() (*Config, error) {
	path := os.Getenv(PathEnv)
	if path == "" {
		path = "config.yaml"
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config at path. A missing file yields
// the defaults.
func LoadFile(path string) (*Config, error) {
	var result Config

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.With("path", path).Errorf("failed to read config file: %w", err)
	}

	if err == nil {
		if err = yaml.Unmarshal(data, &result); err != nil {
			return nil, oops.With("path", path).Errorf("failed to parse YAML config: %w", err)
		}
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyDefaults(result *Config) {
	if result.Log.Level == "" {
		result.Log.Level = "info"
	}
	if result.Server.Name == "" {
		result.Server.Name = "z3-server"
	}
	if result.Server.Version == "" {
		result.Server.Version = "0.1.0"
	}
	if result.Server.Transport == "" {
		result.Server.Transport = "stdio"
	}
	if result.Server.HTTP.Addr == "" {
		result.Server.HTTP.Addr = ":8080"
	}
	if result.Solver.Engine == "" {
		result.Solver.Engine = "auto"
	}
	if result.Solver.Timeout == 0 {
		result.Solver.Timeout = 30 * time.Second
	}
	if result.Solver.MaxExpressionLength == 0 {
		result.Solver.MaxExpressionLength = 64 << 10
	}
	if result.Relationships.MaxEntities == 0 {
		result.Relationships.MaxEntities = 40
	}
	if result.Solver.MaxConcurrent == 0 {
		result.Solver.MaxConcurrent = runtime.NumCPU()
	}
	if result.Relationships.Symmetric == nil {
		result.Relationships.Symmetric = []string{"sibling", "spouse", "married", "cousin", "friend"}
	}
	if result.Relationships.Transitive == nil {
		result.Relationships.Transitive = []string{"ancestor", "descendant", "before", "after"}
	}
}
