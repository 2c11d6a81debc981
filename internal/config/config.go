package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/convert"
)

// EnvPrefix prefixes every environment override, e.g. EML2DOC_OUTPUT_DIR.
const EnvPrefix = "EML2DOC"

// DefaultEnvFile is loaded when present in the working directory.
const DefaultEnvFile = ".env"

// Config holds application configuration
type Config struct {
	InputDir       string `mapstructure:"input_dir"`
	OutputFormat   string `mapstructure:"output_format"`
	OutputDir      string `mapstructure:"output_dir"`
	AttachmentsDir string `mapstructure:"attachments_dir"`
	Collision      string `mapstructure:"collision"`
	Workers        int    `mapstructure:"workers"`
	KeepGoing      bool   `mapstructure:"keep_going"`
	Combined       bool   `mapstructure:"combined"`
	CombinedName   string `mapstructure:"combined_name"`
	IncludeMbox    bool   `mapstructure:"include_mbox"`
	SkipUnchanged  bool   `mapstructure:"skip_unchanged"`
	LogLevel       string `mapstructure:"log_level"`

	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Redaction RedactionConfig `mapstructure:"redaction"`
	Server    ServerConfig    `mapstructure:"server"`
}

// CatalogConfig controls the SQLite conversion catalog.
type CatalogConfig struct {
	Path     string `mapstructure:"path"` // empty means <output_dir>/catalog.db
	Disabled bool   `mapstructure:"disabled"`
}

// RedactionConfig adds patterns after the built-in rules.
type RedactionConfig struct {
	ExtraPatterns []string `mapstructure:"extra_patterns"`
}

// ServerConfig configures the browse server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Open bool   `mapstructure:"open"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		OutputDir:    "./output",
		Collision:    string(attachments.Overwrite),
		Workers:      runtime.NumCPU(),
		CombinedName: "emails",
		LogLevel:     "info",
		Server: ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
	}
}

// SetDefaults registers every key with its default so environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("input_dir", d.InputDir)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("attachments_dir", d.AttachmentsDir)
	v.SetDefault("collision", d.Collision)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("keep_going", d.KeepGoing)
	v.SetDefault("combined", d.Combined)
	v.SetDefault("combined_name", d.CombinedName)
	v.SetDefault("include_mbox", d.IncludeMbox)
	v.SetDefault("skip_unchanged", d.SkipUnchanged)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("catalog.disabled", d.Catalog.Disabled)
	v.SetDefault("redaction.extra_patterns", []string{})
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)
}

// NewViper returns a viper instance with defaults and environment lookup.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds config keys to the flags that set them. Flags missing
// from the set are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keyToFlag map[string]string) error {
	for key, name := range keyToFlag {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the optional YAML file and decodes the merged configuration.
// Precedence: flags, environment, file, defaults.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if strings.TrimSpace(configFile) != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads path into the process environment if it exists.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Validate checks the settings the convert command needs. All problems are
// reported together.
func (c *Config) Validate() error {
	var err error
	if strings.TrimSpace(c.InputDir) == "" {
		err = multierr.Append(err, errors.New("input directory is required"))
	} else if info, statErr := os.Stat(c.InputDir); statErr != nil {
		err = multierr.Append(err, fmt.Errorf("input directory: %w", statErr))
	} else if !info.IsDir() {
		err = multierr.Append(err, fmt.Errorf("input directory %s is not a directory", c.InputDir))
	}
	if strings.TrimSpace(c.OutputFormat) == "" {
		err = multierr.Append(err, errors.New("output format is required"))
	} else if _, fmtErr := convert.ParseFormat(c.OutputFormat); fmtErr != nil {
		err = multierr.Append(err, fmtErr)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		err = multierr.Append(err, errors.New("output directory is required"))
	}
	if c.Workers < 1 {
		err = multierr.Append(err, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if _, pErr := attachments.ParseCollisionPolicy(c.Collision); pErr != nil {
		err = multierr.Append(err, pErr)
	}
	if c.Combined && strings.TrimSpace(c.CombinedName) == "" {
		err = multierr.Append(err, errors.New("combined name is required with --combined"))
	}
	for _, p := range c.Redaction.ExtraPatterns {
		if _, reErr := regexp.Compile(p); reErr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid redaction pattern %q: %w", p, reErr))
		}
	}
	return err
}

// ValidateServe checks the settings the serve command needs.
func (c *Config) ValidateServe() error {
	var err error
	if strings.TrimSpace(c.Server.Host) == "" {
		err = multierr.Append(err, errors.New("server host is required"))
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		err = multierr.Append(err, errors.New("server port is required"))
	}
	if c.Catalog.Disabled {
		err = multierr.Append(err, errors.New("serve needs the catalog, but it is disabled"))
	}
	return err
}

// Format returns the parsed output format.
func (c *Config) Format() (convert.Format, error) {
	return convert.ParseFormat(c.OutputFormat)
}

// AttachmentsPath returns where attachments are written.
func (c *Config) AttachmentsPath() string {
	if c.AttachmentsDir != "" {
		return c.AttachmentsDir
	}
	return filepath.Join(c.OutputDir, "attachments")
}

// CatalogPath returns the catalog database location, or "" when disabled.
func (c *Config) CatalogPath() string {
	if c.Catalog.Disabled {
		return ""
	}
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.OutputDir, "catalog.db")
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
