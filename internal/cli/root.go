package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felo/eml2doc/internal/config"
	"github.com/felo/eml2doc/internal/convert"
	"github.com/felo/eml2doc/internal/logger"
)

// configEnvVar names the config file when --config is not given.
const configEnvVar = config.EnvPrefix + "_CONFIG"

// NewRootCommand builds the eml2doc command tree.
func NewRootCommand() *cobra.Command {
	root := newConvertCommand()
	root.PersistentFlags().String("config", "", "Path to YAML config file (or set "+configEnvVar+")")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.SilenceErrors = true
	root.AddCommand(newServeCommand())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges .env, the config file, the environment and the flags
// bound in keyToFlag.
func loadConfig(cmd *cobra.Command, keyToFlag map[string]string) (*config.Config, error) {
	if err := config.LoadEnvFile(config.DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", config.DefaultEnvFile, err)
	}

	v := config.NewViper()
	keyToFlag["log_level"] = "log-level"
	if err := config.BindFlags(v, cmd.Flags(), keyToFlag); err != nil {
		return nil, err
	}

	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = os.Getenv(configEnvVar)
	}

	return config.Load(v, cfgPath)
}

func newLogger(level string) (logger.Logger, error) {
	log, err := logger.New(level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// formatUsage lists the accepted --output-format values.
func formatUsage() string {
	return "Output format: " + strings.Join(convert.Names(), ", ")
}
