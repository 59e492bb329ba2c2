package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/stormscript/internal/buffer"
	"github.com/dshills/stormscript/internal/config/loader"
	"github.com/dshills/stormscript/internal/script"
	"github.com/dshills/stormscript/internal/script/hook"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "STORMSCRIPT_"

// DefaultExtension is the file extension of macro sources.
const DefaultExtension = ".ksm"

// Config is the complete stormscript configuration.
type Config struct {
	Script ScriptConfig      `toml:"script"`
	Hooks  map[string]string `toml:"hooks"`
	Keys   map[string]string `toml:"keys"`
	Macros MacrosConfig      `toml:"macros"`
	Log    LogConfig         `toml:"log"`
}

// ScriptConfig holds engine limits and sandbox settings.
type ScriptConfig struct {
	MaxMacroDepth     int      `toml:"max_macro_depth"`
	MaxLoopIterations int      `toml:"max_loop_iterations"`
	EvalTimeout       Duration `toml:"eval_timeout"`
	Capabilities      []string `toml:"capabilities"`
}

// MacrosConfig says where macro sources come from.
type MacrosConfig struct {
	// Paths are directories whose macro files define macros at startup.
	Paths []string `toml:"paths"`
	// Startup files are executed once after the macros are defined.
	Startup   []string `toml:"startup"`
	Watch     bool     `toml:"watch"`
	Extension string   `toml:"extension"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
	// File receives log output instead of stderr when set.
	File string `toml:"file"`
}

// Duration is a time.Duration written as a string such as "1.5s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Script: ScriptConfig{
			MaxMacroDepth:     script.DefaultMaxMacroDepth,
			MaxLoopIterations: script.DefaultMaxLoopIterations,
		},
		Hooks: make(map[string]string),
		Keys:  make(map[string]string),
		Macros: MacrosConfig{
			Extension: DefaultExtension,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns the user's configuration file path, or "" if the
// user config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stormscript", "config.toml")
}

// Limits returns the engine limits.
func (c *Config) Limits() script.Limits {
	return script.Limits{
		MaxMacroDepth:     c.Script.MaxMacroDepth,
		MaxLoopIterations: c.Script.MaxLoopIterations,
	}
}

type loadOptions struct {
	fs     loader.FileSystem
	prefix string
}

// Option configures Load.
type Option func(*loadOptions)

// WithFS reads configuration files from fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *loadOptions) {
		o.fs = fsys
	}
}

// WithEnvPrefix changes the environment prefix. An empty prefix disables
// environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.prefix = prefix
	}
}

// Load reads path (skipped when empty or missing), applies environment
// overrides and validates the result.
func Load(path string, opts ...Option) (*Config, error) {
	o := loadOptions{fs: loader.DefaultFS(), prefix: EnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	merged := make(map[string]any)
	if path != "" {
		fl, err := loader.NewFileLoader(path)
		if err != nil {
			return nil, err
		}
		data, err := fl.WithFS(o.fs).Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, data)
	}
	if o.prefix != "" {
		data, err := loader.NewEnvLoader(o.prefix).Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, normalizeEnv(data))
	}

	cfg, err := FromMap(merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeEnv adapts values the environment can only express loosely:
// single list entries, hook names with underscores and bare seconds.
func normalizeEnv(data map[string]any) map[string]any {
	if macros, ok := data["macros"].(map[string]any); ok {
		for _, key := range []string{"paths", "startup"} {
			if s, ok := macros[key].(string); ok {
				macros[key] = []any{s}
			}
		}
	}
	if scr, ok := data["script"].(map[string]any); ok {
		if s, ok := scr["capabilities"].(string); ok {
			scr["capabilities"] = []any{s}
		}
		if n, ok := scr["eval_timeout"].(int64); ok {
			scr["eval_timeout"] = (time.Duration(n) * time.Second).String()
		}
	}
	if hooks, ok := data["hooks"].(map[string]any); ok {
		for k, v := range hooks {
			if strings.Contains(k, "_") {
				delete(hooks, k)
				hooks[strings.ReplaceAll(k, "_", "-")] = v
			}
		}
	}
	return data
}

// FromMap decodes a generic configuration map over the defaults.
// Settings the Config does not know are validation errors.
func FromMap(data map[string]any) (*Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}

	raw, err := toml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, decodeError(err)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = make(map[string]string)
	}
	if cfg.Keys == nil {
		cfg.Keys = make(map[string]string)
	}
	return cfg, nil
}

func decodeError(err error) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		errs := make([]error, 0, len(strict.Errors))
		for i := range strict.Errors {
			errs = append(errs, &ValidationError{
				Path:    strings.Join(strict.Errors[i].Key(), "."),
				Message: "unknown setting",
				Code:    ErrCodeUnknownSetting,
			})
		}
		return errors.Join(errs...)
	}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		return &ValidationError{
			Path:    strings.Join(derr.Key(), "."),
			Message: derr.Error(),
			Code:    ErrCodeTypeMismatch,
		}
	}
	return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
}

var logLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true, "off": true,
}

// Validate checks every setting and returns all failures joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(path, msg string, value any, code ValidationErrorCode) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value, Code: code})
	}

	if c.Script.MaxMacroDepth < 1 {
		add("script.max_macro_depth", "must be at least 1", c.Script.MaxMacroDepth, ErrCodeOutOfRange)
	}
	if c.Script.MaxLoopIterations < 1 {
		add("script.max_loop_iterations", "must be at least 1", c.Script.MaxLoopIterations, ErrCodeOutOfRange)
	}
	if c.Script.EvalTimeout.Duration < 0 {
		add("script.eval_timeout", "must not be negative", c.Script.EvalTimeout.Duration, ErrCodeOutOfRange)
	}
	for name, macro := range c.Hooks {
		if !hook.IsKnown(name) {
			add("hooks."+name, "unknown hook", nil, ErrCodeInvalidName)
		}
		if !buffer.ValidName(macro) {
			add("hooks."+name, "invalid macro name", macro, ErrCodeInvalidName)
		}
	}
	for key, macro := range c.Keys {
		if key == "" {
			add("keys", "empty key name", nil, ErrCodeInvalidName)
		}
		if !buffer.ValidName(macro) {
			add("keys."+key, "invalid macro name", macro, ErrCodeInvalidName)
		}
	}
	if !strings.HasPrefix(c.Macros.Extension, ".") {
		add("macros.extension", "must start with a dot", c.Macros.Extension, ErrCodeInvalidEnum)
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "must be one of debug, info, warn, error, off", c.Log.Level, ErrCodeInvalidEnum)
	}
	return errors.Join(errs...)
}
