package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/nodeflow/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NODEFLOW"

// Loader builds a Config from defaults, file layers and environment
// overrides, in that order.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
		getenv:     os.Getenv,
	}
}

// SetEnv replaces the environment lookup, os.Getenv by default.
func (l *Loader) SetEnv(getenv func(string) string) {
	if getenv != nil {
		l.getenv = getenv
	}
}

// AddLayer appends a file layer. Later layers override earlier ones field by
// field.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation toggles validation at the end of Load.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads defaults overlaid with a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all layers onto the defaults and applies the environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) decodeFile(path string, cfg *Config) error {
	data, err := safeReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path),
				"Loader", "Load", "read config")
		}
		return errors.WrapInvalid(err, "Loader", "Load", "read config")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, path, err),
				"Loader", "Load", "decode yaml")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, path, err),
				"Loader", "Load", "decode json")
		}
	}
	return nil
}

// applyEnvOverrides reads <prefix>_* variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"PIPELINE_NAME":   &cfg.Pipeline.Name,
		"PIPELINE_SOURCE": &cfg.Pipeline.Source,
		"PIPELINE_POLICY": &cfg.Pipeline.Policy,
		"NATS_URL":        &cfg.NATS.URL,
		"NATS_SUBJECT":    &cfg.NATS.Subject,
		"NATS_USERNAME":   &cfg.NATS.Username,
		"NATS_PASSWORD":   &cfg.NATS.Password,
		"NATS_TOKEN":      &cfg.NATS.Token,
		"FILE_PATH":       &cfg.File.Path,
	}
	for key, dst := range str {
		if val := l.getenv(l.envPrefix + "_" + key); val != "" {
			*dst = val
		}
	}

	ints := map[string]*int{
		"METRICS_PORT":   &cfg.Metrics.Port,
		"WEBSOCKET_PORT": &cfg.WebSocket.Port,
	}
	for key, dst := range ints {
		val := l.getenv(l.envPrefix + "_" + key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s_%s=%q", errors.ErrInvalidConfig, l.envPrefix, key, val),
				"Loader", "Load", "parse environment")
		}
		*dst = n
	}

	if val := l.getenv(l.envPrefix + "_NATS_JETSTREAM"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s_NATS_JETSTREAM=%q", errors.ErrInvalidConfig, l.envPrefix, val),
				"Loader", "Load", "parse environment")
		}
		cfg.NATS.JetStream = b
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML depending on the
// extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode config")
	}
	return safeWriteFile(path, data)
}
