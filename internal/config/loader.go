package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "datalens.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "datalens.yml"

// maxUpwardSearchLevels limits how far up the directory tree to search for
// config files.
const maxUpwardSearchLevels = 10

var configFileUsed string

// findConfigFile finds the config file to use.
// Priority: explicit path > datalens.yaml > datalens.yml, searching upward
// from the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}

	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < maxUpwardSearchLevels; i++ {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"endpoint":        DefaultEndpoint,
		"table":           DefaultTable,
		"state_path":      DefaultStateFile,
		"sample_rows":     DefaultSampleRows,
		"output":          DefaultOutput,
		"verbose":         false,
		"serve_port":      DefaultServePort,
		"llm.base_url":    DefaultLLMBaseURL,
		"llm.model":       DefaultLLMModel,
		"llm.api_key":     DefaultLLMAPIKey,
		"llm.temperature": 0.0,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (DATALENS_ prefix)
	// Transform: DATALENS_STATE_PATH -> state_path; double underscore nests,
	// DATALENS_LLM__API_KEY -> llm.api_key
	if err := k.Load(env.Provider("DATALENS_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "DATALENS_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --state for brevity; the config key is state_path.
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			// --port sets the serve port.
			if key == "port" {
				return "serve_port", posflag.FlagVal(flags, f)
			}
			// --database sets the target path (duckdb) without nesting.
			if key == "database" {
				return "target.path", posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Initialize default target if not specified
	if cfg.Target == nil {
		cfg.Target = &TargetConfig{Type: "duckdb"}
	}
	if cfg.Target.Type == "" {
		cfg.Target.Type = "duckdb"
	}
	if cfg.Target.Type == "duckdb" && cfg.Target.Path == "" {
		cfg.Target.Path = filepath.Join(filepath.Dir(cfg.StatePath), "data.duckdb")
	}

	// Expand environment variables in sensitive fields
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Target.Password = expandEnvVars(cfg.Target.Password)
	cfg.Target.User = expandEnvVars(cfg.Target.User)
	cfg.Target.Host = expandEnvVars(cfg.Target.Host)

	return &cfg, nil
}

// ConfigFileUsed returns the path to the config file being used, if any.
func ConfigFileUsed() string {
	return configFileUsed
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unset variables expand to the empty string so placeholder defaults don't
// leak into requests.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
