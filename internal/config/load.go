package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/retry"
	"gopkg.in/yaml.v3"
)

// defaultKeyEnv names the variable each provider type falls back to for
// its API key.
var defaultKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"cohere": "COHERE_API_KEY",
}

// Load reads and validates the file at path.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, err
	}

	logger.Debug("Config loaded.", "path", path, "store", cfg.Store.Driver, "providers", len(cfg.Providers), "search", len(cfg.Search))
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default rooted
// in the directory the file would have been in.
func LoadOrDefault(ctx context.Context, path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		ctxlog.FromContext(ctx).Debug("Config file not found, using defaults.", "path", path)
		cfg := Default()
		if cfg.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(ctx, path)
}

// Parse decodes raw over Default and validates the result. Unknown keys
// are errors.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports every violation at once,
// using yaml key paths.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	case "unique":
		return fmt.Sprintf("%s must have unique %s values", field, strings.ToLower(fe.Param()))
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"gte": ">=", "lte": "<="}[fe.Tag()], fe.Param())
	case "gtefield":
		return field + " must not be below initial_backoff"
	}
	return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
}

// StorePath returns the store location with ~ expanded and relative paths
// resolved against the config directory. Empty paths default per driver.
func (c *Config) StorePath() (string, error) {
	path := c.Store.Path
	if path == "" {
		switch c.Store.Driver {
		case DriverBadger:
			path = "store.badger"
		default:
			path = "store.sqlite"
		}
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	return path, nil
}

// ResolveAPIKey returns the key from the file, the named variable or the
// type's default variable, in that order.
func (p Provider) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	if env, ok := defaultKeyEnv[p.Type]; ok {
		return os.Getenv(env)
	}
	return ""
}

// Policy converts the run settings into a retry policy.
func (r Run) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialBackoff,
		MaxInterval:     r.MaxBackoff,
		Timeout:         r.Timeout,
	}
}
