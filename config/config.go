// Package config loads mirror settings from defaults, an optional YAML file,
// .env files and IMAGE_MIRROR_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ParserRegex = "regex"
	ParserDOM   = "dom"
)

type Config struct {
	InputHTML    string        `yaml:"input_html" env:"IMAGE_MIRROR_INPUT_HTML"`
	InputCharset string        `yaml:"input_charset" env:"IMAGE_MIRROR_INPUT_CHARSET"`
	URLList      string        `yaml:"url_list" env:"IMAGE_MIRROR_URL_LIST"`
	OutputDir    string        `yaml:"output_dir" env:"IMAGE_MIRROR_OUTPUT_DIR"`
	RemotePrefix string        `yaml:"remote_prefix" env:"IMAGE_MIRROR_REMOTE_PREFIX"`
	Parser       string        `yaml:"parser" env:"IMAGE_MIRROR_PARSER"`
	Manifest     string        `yaml:"manifest" env:"IMAGE_MIRROR_MANIFEST"`
	Timeout      time.Duration `yaml:"timeout" env:"IMAGE_MIRROR_TIMEOUT"`
	Verbose      bool          `yaml:"verbose" env:"IMAGE_MIRROR_VERBOSE"`
}

// Default returns the settings the tool was first written against.
func Default() *Config {
	return &Config{
		InputHTML:    "copy.html",
		InputCharset: "utf-8",
		URLList:      "image_urls.txt",
		OutputDir:    "public/images",
		RemotePrefix: "https://www.thebrainyinsights.com/images",
		Parser:       ParserRegex,
	}
}

// ImagePrefix is the prefix extracted URLs must start with: RemotePrefix
// followed by exactly one slash.
func (c *Config) ImagePrefix() string {
	return strings.TrimRight(c.RemotePrefix, "/") + "/"
}

// Validate checks the settings needed by both steps.
func (c *Config) Validate() error {
	var errs []error
	if c.InputHTML == "" {
		errs = append(errs, errors.New("input_html is empty"))
	}
	if c.URLList == "" {
		errs = append(errs, errors.New("url_list is empty"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is empty"))
	}
	if c.Parser != ParserRegex && c.Parser != ParserDOM {
		errs = append(errs, fmt.Errorf("unknown parser %q", c.Parser))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative timeout %s", c.Timeout))
	}
	if u, err := url.Parse(c.RemotePrefix); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote_prefix %q is not an http(s) URL", c.RemotePrefix))
	}
	return errors.Join(errs...)
}

// Load builds a Config from defaults, the YAML file at path (skipped when it
// does not exist) and environment overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads ENV_FILE if set, otherwise .env.local then .env.
// godotenv never overwrites variables that are already set.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		val, ok := os.LookupEnv(tag)
		if !ok || val == "" {
			continue
		}
		if err := setFieldFromString(v.Field(i), val); err != nil {
			return fmt.Errorf("%s: %w", tag, err)
		}
	}
	return nil
}

func setFieldFromString(field reflect.Value, val string) error {
	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(val)
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}
