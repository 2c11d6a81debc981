package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.InputDir = t.TempDir()
	cfg.OutputFormat = "html"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, "overwrite", cfg.Collision)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, "http://localhost:8080", cfg.URL())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, Default().OutputDir, cfg.OutputDir)
	assert.Equal(t, "emails", cfg.CombinedName)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeTempFile(t, `
input_dir: /mail
output_format: pdf
workers: 3
catalog:
  disabled: true
redaction:
  extra_patterns:
    - "Ticket #\\d+"
server:
  port: "9090"
`)

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "/mail", cfg.InputDir)
	assert.Equal(t, "pdf", cfg.OutputFormat)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Catalog.Disabled)
	assert.Equal(t, []string{`Ticket #\d+`}, cfg.Redaction.ExtraPatterns)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "unset keys keep their defaults")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "not: [valid_yaml")

	_, err := Load(NewViper(), path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTempFile(t, "output_dir: from-file\n")
	t.Setenv("EML2DOC_OUTPUT_DIR", "from-env")
	t.Setenv("EML2DOC_SERVER_PORT", "7000")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OutputDir)
	assert.Equal(t, "7000", cfg.Server.Port)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("EML2DOC_OUTPUT_FORMAT", "txt")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output-format", "", "")
	require.NoError(t, flags.Parse([]string{"--output-format", "json"}))

	v := NewViper()
	require.NoError(t, BindFlags(v, flags, map[string]string{
		"output_format": "output-format",
		"output_dir":    "output-dir", // not registered, skipped
	}))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EML2DOC_TEST_VALUE=loaded\n"), 0644))
	t.Setenv("EML2DOC_TEST_VALUE", "")
	os.Unsetenv("EML2DOC_TEST_VALUE")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("EML2DOC_TEST_VALUE"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.Collision = "skip"
	cfg.Redaction.ExtraPatterns = []string{"("}

	err := cfg.Validate()
	require.Error(t, err)

	errs := multierr.Errors(err)
	assert.Len(t, errs, 5)
	assert.Contains(t, err.Error(), "input directory is required")
	assert.Contains(t, err.Error(), "output format is required")
	assert.Contains(t, err.Error(), "workers must be at least 1")
	assert.Contains(t, err.Error(), "unknown collision policy")
	assert.Contains(t, err.Error(), "invalid redaction pattern")
}

func TestValidate_Format(t *testing.T) {
	cfg := validConfig(t)
	cfg.OutputFormat = "docx"

	assert.ErrorContains(t, cfg.Validate(), "unknown output format")
}

func TestValidate_InputNotDir(t *testing.T) {
	cfg := validConfig(t)
	cfg.InputDir = writeTempFile(t, "x")

	assert.ErrorContains(t, cfg.Validate(), "is not a directory")
}

func TestValidateServe(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ValidateServe())

	cfg.Catalog.Disabled = true
	assert.ErrorContains(t, cfg.ValidateServe(), "catalog")
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "out"

	assert.Equal(t, filepath.Join("out", "attachments"), cfg.AttachmentsPath())
	assert.Equal(t, filepath.Join("out", "catalog.db"), cfg.CatalogPath())

	cfg.AttachmentsDir = "files"
	cfg.Catalog.Path = "cat.db"
	assert.Equal(t, "files", cfg.AttachmentsPath())
	assert.Equal(t, "cat.db", cfg.CatalogPath())

	cfg.Catalog.Disabled = true
	assert.Empty(t, cfg.CatalogPath())
}
