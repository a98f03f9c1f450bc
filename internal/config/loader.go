package config

import (
	"context"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/memocred/pkg/errors"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MEMOCRED_"
	// EnvConfigFile names the variable holding an optional YAML file path.
	EnvConfigFile = "MEMOCRED_CONFIG"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report field names the way operators write them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MEMOCRED_CONFIG is set
//  3. env (prefix MEMOCRED_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", path), ErrLoadConfig)
		}
	}

	// MEMOCRED_PAGE_LIMIT -> page_limit (flat keys, underscores preserved).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read environment"), ErrLoadConfig)
	}
	// The file path itself is not a config key.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode config"), ErrLoadConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and link pattern syntax.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return errors.Mark(errors.Newf("%s", strings.Join(msgs, "; ")), ErrInvalidConfig)
		}
		return errors.Mark(err, ErrInvalidConfig)
	}
	for _, p := range c.LinkPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return errors.Mark(errors.Wrapf(err, "link_patterns: %q", p), ErrInvalidConfig)
		}
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return field + " must be at least " + e.Param()
	case "oneof":
		return field + " must be one of: " + e.Param()
	case "url":
		return field + " must be a valid URL"
	case "gtefield":
		return field + " must not be below retry_initial_backoff_ms"
	default:
		return field + " is invalid"
	}
}
