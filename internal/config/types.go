// Package config loads datalens configuration from defaults, the config
// file, DATALENS_* environment variables and CLI flags, in ascending
// precedence.
package config

// TargetConfig holds query engine configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Path string `koanf:"path"` // file path or :memory:

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// LLMConfig holds the chat-completions endpoint configuration used by the
// serve command.
type LLMConfig struct {
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
}

// Config is the full CLI configuration.
type Config struct {
	// Endpoint is the base URL of the model endpoint service the pipeline
	// calls for plan and synthesis.
	Endpoint string `koanf:"endpoint"`

	// Table is the table name datasets are loaded into and analyzed under.
	Table string `koanf:"table"`

	// StatePath is the run-history SQLite database path.
	StatePath string `koanf:"state_path"`

	// SampleRows is how many sample rows the schema snapshot carries.
	SampleRows int `koanf:"sample_rows"`

	// Output is the default render format: table, json, csv or md.
	Output string `koanf:"output"`

	Verbose bool `koanf:"verbose"`

	// ServePort is the port the model endpoint service listens on.
	ServePort int `koanf:"serve_port"`

	Target *TargetConfig `koanf:"target"`
	LLM    LLMConfig     `koanf:"llm"`
}

// Default configuration values.
const (
	DefaultEndpoint   = "http://localhost:8080"
	DefaultTable      = "dataset"
	DefaultStateFile  = ".datalens/history.db"
	DefaultSampleRows = 5
	DefaultOutput     = "table"
	DefaultServePort  = 8080
	DefaultLLMBaseURL = "https://openrouter.ai/api/v1"
	DefaultLLMModel   = "openai/gpt-oss-120b"
	DefaultLLMAPIKey  = "${OPENROUTER_API_KEY}"
)
