package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// Load builds the configuration.
//
// Precedence, lowest to highest:
//  1. Defaults
//  2. YAML file at configPath (skipped when empty)
//  3. .env file in the working directory, if present
//  4. Environment variables, SECTION_FIELD_NAME mapping to section.field_name
//
// The result is validated before it is returned.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(configPath)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	known := make(map[string]bool)
	for _, key := range sectionNames() {
		known[key] = true
	}
	if err := k.Load(envProvider(known), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is larger than %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envProvider maps SECTION_FIELD_NAME to section.field_name, keeping only
// variables whose section is known so unrelated environment is ignored.
func envProvider(known map[string]bool) *env.Env {
	return env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		parts := strings.SplitN(strings.ToLower(key), "_", 2)
		if len(parts) != 2 || !known[parts[0]] || value == "" {
			return "", nil
		}
		return parts[0] + "." + parts[1], value
	})
}

func sectionNames() []string {
	return []string{
		"qdrant", "vector", "embedding", "openai", "huggingface", "groq",
		"generation", "chunk", "mongo", "upload", "ingest", "server",
		"github", "log", "otel",
	}
}
