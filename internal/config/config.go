// Package config loads ctxdump settings from a YAML file and the process
// environment, and resolves where reports are written.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"ctxdump/internal/decision"
)

// Environment variables read by Load.
const (
	EnvConfig     = "CTXDUMP_CONFIG"
	EnvOutputPath = "CTXDUMP_OUTPUT_PATH"
	EnvOutputDir  = "CTXDUMP_OUTPUT_DIR"
	EnvToken      = "TEST_TOKEN"
	EnvLogLevel   = "CTXDUMP_LOG_LEVEL"
)

const (
	// DefaultFile is looked up in the working directory when EnvConfig is unset.
	DefaultFile = ".ctxdump.yaml"
	// DefaultDir is where reports go without an explicit path or directory.
	DefaultDir = "var/log"
	// ReportName is the base name of the report file.
	ReportName = "ctxdump"
)

// ErrInvalidConfig is returned when a config file fails schema validation.
var ErrInvalidConfig = errors.New("invalid config")

//go:embed schema.json
var schemaJSON string

// File mirrors the YAML config file.
type File struct {
	OutputPath string         `yaml:"output_path,omitempty"`
	OutputDir  string         `yaml:"output_dir,omitempty"`
	Token      string         `yaml:"token,omitempty"`
	LogLevel   string         `yaml:"log_level,omitempty"`
	Env        map[string]any `yaml:"env,omitempty"`
	Marked     []string       `yaml:"marked,omitempty"`
}

// Config is the resolved configuration.
type Config struct {
	OutputPath string
	OutputDir  string
	Token      string
	LogLevel   string
	Env        decision.Env // file env overlaid by the process env
	Marked     []string
	Source     string // config file in use, "" when none
}

const schemaURL = "https://ctxdump.dev/schema/config.json"

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
})

// Parse validates content against the config schema and decodes it.
func Parse(content []byte) (File, error) {
	var raw any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return File{}, fmt.Errorf("%w: invalid YAML: %v", ErrInvalidConfig, err)
	}
	if raw == nil {
		return File{}, nil
	}

	// Round-trip through JSON so the validator sees JSON types.
	data, err := json.Marshal(raw)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s, err := schema()
	if err != nil {
		return File{}, err
	}
	if err := s.Validate(payload); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return f, nil
}

// LoadFile reads and parses the config file at path.
func LoadFile(path string) (File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, err
		}
		return File{}, fmt.Errorf("failed to read config: %w", err)
	}
	f, err := Parse(content)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Load resolves the configuration from environ and, when present, the config
// file. dir is the directory searched for DefaultFile. Environment values
// win over the file.
func Load(environ []string, dir string) (Config, error) {
	env := decision.EnvFromEnviron(environ)
	lookup := func(key string) string {
		s, _ := env[key].(string)
		return s
	}

	var (
		f      File
		source string
	)
	if path := lookup(EnvConfig); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		f, source = loaded, path
	} else {
		path := filepath.Join(dir, DefaultFile)
		loaded, err := LoadFile(path)
		switch {
		case err == nil:
			f, source = loaded, path
		case !os.IsNotExist(err):
			return Config{}, err
		}
	}

	cfg := Config{
		OutputPath: f.OutputPath,
		OutputDir:  f.OutputDir,
		Token:      f.Token,
		LogLevel:   f.LogLevel,
		Env:        decision.Overlay(decision.Env(f.Env), env),
		Marked:     f.Marked,
		Source:     source,
	}
	if v := lookup(EnvOutputPath); v != "" {
		cfg.OutputPath = v
	}
	if v := lookup(EnvOutputDir); v != "" {
		cfg.OutputDir = v
	}
	if v := lookup(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := lookup(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// ReportPath returns where reports are appended. An explicit path wins,
// then a directory with a per-process file name, then the default location
// (isolated per token when one is set).
func (c Config) ReportPath(pid int, suffix string) string {
	switch {
	case c.OutputPath != "":
		return c.OutputPath
	case c.OutputDir != "":
		return filepath.Join(c.OutputDir, fmt.Sprintf("%s-%d-%s.txt", ReportName, pid, suffix))
	case c.Token != "":
		return filepath.Join(DefaultDir, "test_"+c.Token, ReportName+".txt")
	default:
		return filepath.Join(DefaultDir, ReportName+".txt")
	}
}

// NewSuffix returns a short random suffix for per-process report files.
func NewSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Logger builds the diagnostic logger. Without a level it is a no-op.
func (c Config) Logger() (*zap.Logger, error) {
	if c.LogLevel == "" {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

// MarkedSet returns Marked as a lookup set.
func (c Config) MarkedSet() map[string]bool {
	set := make(map[string]bool, len(c.Marked))
	for _, name := range c.Marked {
		set[name] = true
	}
	return set
}
