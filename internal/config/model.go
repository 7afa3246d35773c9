package config

import "time"

// DefaultFile is the configuration file name looked up in the project
// directory.
const DefaultFile = "llmgrid.yaml"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the parsed configuration file.
type Config struct {
	Store     Store      `yaml:"store"`
	Providers []Provider `yaml:"providers" validate:"unique=Name,dive"`
	Search    []Search   `yaml:"search" validate:"unique=Name,dive"`
	Run       Run        `yaml:"run"`
	Events    Events     `yaml:"events"`
	Server    Server     `yaml:"server"`

	// Dir is the directory of the file the config was read from. Relative
	// store paths are resolved against it.
	Dir string `yaml:"-"`
}

// Store selects and configures the store backend.
type Store struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres badger"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn" validate:"required_if=Driver postgres"`
	// Path is the SQLite file or the badger directory.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Provider declares one LLM backend.
type Provider struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=openai cohere stub"`
	// APIKey wins over APIKeyEnv, which wins over the type's default
	// variable (OPENAI_API_KEY, COHERE_API_KEY).
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	// Model is informational; blocks name their model.
	Model             string  `yaml:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// Search declares one search backend.
type Search struct {
	Name   string `yaml:"name" validate:"required"`
	Type   string `yaml:"type" validate:"required,oneof=http weaviate"`
	URL    string `yaml:"url" validate:"required,url"`
	Class  string `yaml:"class"`
	APIKey string `yaml:"api_key"`
}

// Run holds execution defaults. Blocks may override the retry settings.
type Run struct {
	Workers        int           `yaml:"workers" validate:"gte=1"`
	MaxAttempts    int           `yaml:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	// Timeout bounds each provider or network attempt.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Events configures the socket.io publisher. An empty URL disables it.
type Events struct {
	SocketIOURL string `yaml:"socketio_url" validate:"omitempty,url"`
	Namespace   string `yaml:"namespace"`
	Event       string `yaml:"event"`
}

// Server configures the health and metrics endpoint. Port 0 disables it.
type Server struct {
	HealthcheckPort int `yaml:"healthcheck_port" validate:"gte=0,lte=65535"`
}
