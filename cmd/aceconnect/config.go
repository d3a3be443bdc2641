package main

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	aceconnect "github.com/Zainktk/ace-connect-web"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// ============================================================================
// Environments
// ============================================================================

var environments = map[string]string{
	"production":  aceconnect.DefaultBaseURL,
	"development": "http://localhost:3000/api",
}

func environmentNames() string {
	names := make([]string, 0, len(environments))
	for name := range environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// baseURLSource picks the API base URL and names where it came from:
// ACECONNECT_BASE_URL, then the config file's base_url, then its
// environment.
func baseURLSource(cfg *Config) (string, string) {
	if v := os.Getenv("ACECONNECT_BASE_URL"); v != "" {
		return v, "ACECONNECT_BASE_URL"
	}
	if cfg.Default.BaseURL != "" {
		return cfg.Default.BaseURL, "default.base_url"
	}
	if u, ok := environments[cfg.Default.Environment]; ok {
		return u, "environment " + cfg.Default.Environment
	}
	return aceconnect.DefaultBaseURL, "built-in default"
}

func resolveBaseURL(cfg *Config) string {
	u, _ := baseURLSource(cfg)
	return u
}

func validateBaseURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("base_url must be an absolute http or https URL, got %q", value)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.base_url").
// An empty value clears the field.
func setConfigValue(cfg *Config, key, value string) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	if section != "default" {
		return fmt.Errorf("unknown config section %q (valid: default)", section)
	}

	switch field {
	case "environment":
		if _, ok := environments[value]; value != "" && !ok {
			return fmt.Errorf("unknown environment %q (valid: %s)", value, environmentNames())
		}
		cfg.Default.Environment = value
	case "base_url":
		value = strings.TrimRight(value, "/")
		if value != "" {
			if err := validateBaseURL(value); err != nil {
				return err
			}
		}
		cfg.Default.BaseURL = value
	default:
		return fmt.Errorf("unknown field %q in section [default]", field)
	}
	return nil
}

// ============================================================================
// Commands
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ACE CONNECT configuration",
	Long:  "View or modify the CLI configuration stored in ~/.aceconnect/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective backend settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		base, source := baseURLSource(cfg)
		realtime := aceconnect.NewClient(aceconnect.WithBaseURL(base)).RealtimeURL()

		if jsonOutput {
			return printJSON(map[string]string{
				"environment": cfg.Default.Environment,
				"base_url":    base,
				"source":      source,
				"realtime":    realtime,
			})
		}
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Printf("Config file: %s\n", path)
		fmt.Printf("Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		fmt.Printf("Base URL:    %s (%s)\n", base, source)
		fmt.Printf("Realtime:    %s\n", realtime)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value using dot notation.\n" +
		"Keys: default.environment (" + environmentNames() + "), default.base_url.\n" +
		"Example: aceconnect config set default.environment development",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConfig(args[0], args[1])
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Clear a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConfig(args[0], "")
	},
}

func updateConfig(key, value string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if value == "" {
		fmt.Printf("Cleared %s\n", key)
	} else {
		fmt.Printf("Set %s = %s\n", key, value)
	}
	if base, source := baseURLSource(cfg); source == "ACECONNECT_BASE_URL" {
		fmt.Printf("Note: ACECONNECT_BASE_URL=%s overrides the config file.\n", base)
	}
	return nil
}
