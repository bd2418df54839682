package config

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "BELLAQA_"

const maxConfigFileSize = 1024 * 1024 // 1MiB

//go:embed defaults.yaml
var defaultsYAML []byte

// nestedGroups lists the second-level groups that env keys can address, so
// BELLAQA_TELEMETRY_SAMPLING_RATE maps to telemetry.sampling.rate rather
// than telemetry.sampling_rate.
var nestedGroups = map[string][]string{
	"logging":   {"output", "caller", "stacktrace", "redaction"},
	"telemetry": {"sampling", "metrics", "shutdown"},
}

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"sources.files":            true,
	"logging.redaction.fields": true,
}

// Load builds the configuration.
//
// Precedence (lowest to highest):
//  1. embedded defaults.yaml
//  2. the YAML file at path, if path is not empty
//  3. BELLAQA_SECTION_FIELD environment variables
//  4. legacy PORT, and GOOGLE_API_KEY for any API key still unset
//
// Every failure is an apperr configuration error.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, apperr.Configuration("config.Load", err)
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if err := applyLegacyEnv(k); err != nil {
		return nil, err
	}

	cfg := &Config{k: k}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile opens path once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	if info.Mode().Perm()&0o002 != 0 {
		return nil, fmt.Errorf("config file %s is world-writable (mode %04o)", path, info.Mode().Perm())
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return content, nil
}

// envKey maps BELLAQA_SECTION_FIELD_NAME to section.field_name, splitting
// on the first underscore after the prefix.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	for _, group := range nestedGroups[section] {
		if rest, ok := strings.CutPrefix(field, group+"_"); ok {
			return section + "." + group + "." + rest
		}
	}
	return section + "." + field
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if listKeys[key] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

// applyLegacyEnv honors the variables the original deployment used.
func applyLegacyEnv(k *koanf.Koanf) error {
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: PORT must be a number, got %q", ErrInvalidConfig, port)
		}
		if err := k.Set("server.port", n); err != nil {
			return fmt.Errorf("applying PORT: %w", err)
		}
	}

	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		for _, path := range []string{"embeddings.api_key", "generation.api_key"} {
			if k.String(path) != "" {
				continue
			}
			if err := k.Set(path, key); err != nil {
				return fmt.Errorf("applying GOOGLE_API_KEY: %w", err)
			}
		}
	}
	return nil
}
