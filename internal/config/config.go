// Package config provides configuration management for pagewright using
// Viper for loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the PAGEWRIGHT_ prefix, a .env file loaded before the
// environment is read, and struct validation. It covers the site base
// paths, the build pipeline, the output target, watch mode and the preview
// server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagewright/internal/errors"
)

// Output targets.
const (
	TargetFS = "fs"
	TargetS3 = "s3"
)

type Config struct {
	// Root is the project directory. Relative paths resolve against it.
	Root       string `mapstructure:"root"`
	Base       string `mapstructure:"base" validate:"required,basepath"`
	DebugBase  string `mapstructure:"debug_base" validate:"omitempty,basepath,nefield=Base"`
	RoutesFile string `mapstructure:"routes_file" validate:"required"`
	// ModulesFile is an optional JSON manifest of prebuilt client modules.
	ModulesFile string `mapstructure:"modules_file"`
	// ClientDir holds client scripts and stylesheets compiled into the
	// module map under Build.AssetsDir. It is skipped when missing.
	ClientDir string `mapstructure:"client_dir"`

	Build   BuildConfig   `mapstructure:"build"`
	Output  OutputConfig  `mapstructure:"output"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Preview PreviewConfig `mapstructure:"preview"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type BuildConfig struct {
	MaxWorkers int    `mapstructure:"max_workers" validate:"min=0,max=256"`
	AssetsDir  string `mapstructure:"assets_dir" validate:"required,relpath"`
	// HelpersID is the module id of the client runtime that defines
	// importState, setState, preCacheState, describeHead and preloadModules.
	HelpersID   string        `mapstructure:"helpers_id" validate:"required"`
	HTMLTimeout time.Duration `mapstructure:"html_timeout" validate:"min=0"`
	// PageMaxAge and PropsMaxAge are in seconds. Negative disables caching.
	PageMaxAge  int  `mapstructure:"page_max_age"`
	PropsMaxAge int  `mapstructure:"props_max_age"`
	Minify      bool `mapstructure:"minify"`
}

type OutputConfig struct {
	Target string   `mapstructure:"target" validate:"oneof=fs s3"`
	Dir    string   `mapstructure:"dir" validate:"required"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type WatchConfig struct {
	Paths    []string      `mapstructure:"paths"`
	Ignore   []string      `mapstructure:"ignore"`
	Debounce time.Duration `mapstructure:"debounce" validate:"min=0"`
}

type PreviewConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("base", "/")
	v.SetDefault("debug_base", "")
	v.SetDefault("routes_file", "routes.yml")
	v.SetDefault("client_dir", "client")
	v.SetDefault("build.max_workers", 1)
	v.SetDefault("build.assets_dir", "assets")
	v.SetDefault("build.helpers_id", "pagewright/client.js")
	v.SetDefault("build.html_timeout", 10*time.Second)
	v.SetDefault("build.page_max_age", -1)
	v.SetDefault("build.props_max_age", -1)
	v.SetDefault("build.minify", true)
	v.SetDefault("output.target", TargetFS)
	v.SetDefault("output.dir", "dist")
	v.SetDefault("watch.debounce", 300*time.Millisecond)
	v.SetDefault("preview.host", "localhost")
	v.SetDefault("preview.port", 4173)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding values that are already set. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "unmarshal configuration", err)
	}

	// Handle slices set via viper from env or flags as comma separated strings
	if v.IsSet("watch.paths") && len(config.Watch.Paths) == 0 {
		config.Watch.Paths = v.GetStringSlice("watch.paths")
	}
	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = []string{"."}
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = []string{".git", "node_modules"}
	}

	config.Base = normalizeBase(config.Base)
	if config.DebugBase != "" {
		config.DebugBase = normalizeBase(config.DebugBase)
	}

	if err := validateConfig(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid configuration", err)
	}

	return &config, nil
}

// DebugDir is the output subdirectory mirroring the production layout for
// the debug view, e.g. "_debug/" for a debug base of "/_debug/".
func (c *Config) DebugDir() string {
	if c.DebugBase == "" {
		return ""
	}
	rel := strings.TrimPrefix(c.DebugBase, c.Base)
	if rel == c.DebugBase {
		rel = strings.TrimPrefix(c.DebugBase, "/")
	}
	return rel
}

// ResolvePath resolves p against the project root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("basepath", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") && !strings.Contains(s, "..")
	})
	_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		clean := filepath.Clean(s)
		return !filepath.IsAbs(clean) && !strings.HasPrefix(clean, "..")
	})
	return v
}

// validateConfig validates configuration values
func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return err
	}

	if config.Output.Target == TargetS3 && config.Output.S3.Bucket == "" {
		return fmt.Errorf("output.s3.bucket is required for the s3 target")
	}

	return nil
}

// normalizeBase ensures a base path starts and ends with a slash.
func normalizeBase(base string) string {
	if base == "" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
