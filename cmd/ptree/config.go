package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/papertree/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
	Long: `Inspect configuration.

Settings are read from $XDG_CONFIG_HOME/ptree/config.yml (or --config),
then overridden by environment variables:
  S2_API_KEY, PTREE_RATE_LIMIT_DELAY, PTREE_MAX_RETRIES,
  PTREE_MAX_DEPTH, PTREE_POSTGRES_URL
A .env file in the working directory is loaded first.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// ConfigResponse is the response for config show. Secrets are masked.
type ConfigResponse struct {
	Path           string  `json:"path"`
	APIKey         string  `json:"api_key,omitempty"`
	RateLimitDelay float64 `json:"rate_limit_delay"`
	MaxRetries     int     `json:"max_retries"`
	MaxDepth       int     `json:"max_depth"`
	Timeout        float64 `json:"timeout"`
	BaseURL        string  `json:"base_url,omitempty"`
	PostgresURL    string  `json:"postgres_url,omitempty"`
	Table          string  `json:"table"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := configPath
	if path == "" {
		path = config.GlobalConfigPath()
	}
	resp := ConfigResponse{
		Path:           path,
		APIKey:         cfg.MaskedAPIKey(),
		RateLimitDelay: cfg.RateLimitDelay,
		MaxRetries:     cfg.MaxRetries,
		MaxDepth:       cfg.MaxDepth,
		Timeout:        cfg.Timeout,
		BaseURL:        cfg.BaseURL,
		PostgresURL:    cfg.MaskedPostgresURL(),
		Table:          cfg.Table,
	}

	if humanOutput {
		outputHuman("config:           %s\n", resp.Path)
		outputHuman("api_key:          %s\n", valueOrNone(resp.APIKey))
		outputHuman("rate_limit_delay: %gs\n", resp.RateLimitDelay)
		outputHuman("max_retries:      %d\n", resp.MaxRetries)
		outputHuman("max_depth:        %d\n", resp.MaxDepth)
		outputHuman("timeout:          %gs\n", resp.Timeout)
		outputHuman("base_url:         %s\n", valueOrNone(resp.BaseURL))
		outputHuman("postgres_url:     %s\n", valueOrNone(resp.PostgresURL))
		outputHuman("table:            %s\n", resp.Table)
		return nil
	}
	return outputJSON(resp)
}

func valueOrNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
