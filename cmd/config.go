package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the gateway configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration",
	Long:  `Write an example YAML configuration listing every built-in provider and a local OpenAI-compatible endpoint.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration with secrets masked.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

var configExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export configuration as JSON",
	Long:  `Write the stored configuration as JSON to a file, or stdout when no file is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigExport,
}

var configImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import configuration from JSON",
	Long:  `Replace the stored configuration with a validated JSON document.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigImport,
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing configuration")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")

	if cfgMgr.Exists() && !force {
		color.Yellow("Configuration already exists at %s (use --force to overwrite)", cfgMgr.GetPath())
		return nil
	}

	if err := cfgMgr.CreateExampleYAML(); err != nil {
		return fmt.Errorf("failed to write example configuration: %w", err)
	}

	color.Green("Example configuration written to: %s", cfgMgr.GetPath())
	color.Cyan("Add your provider credentials, then start the gateway with: %s start", rootCmd.Name())

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run '%s config init' to create one.", rootCmd.Name())
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %ds\n", "Timeout", cfg.TimeoutSeconds)
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nProviders:")

	for _, provider := range cfg.Providers {
		fmt.Printf("  - Name: %s\n", provider.Name)
		fmt.Printf("    API Base: %s\n", provider.APIBase)
		fmt.Printf("    API Key: %s\n", maskString(provider.APIKey))

		if provider.AccessToken != "" || provider.RefreshToken != "" {
			fmt.Printf("    Access Token: %s\n", maskString(provider.AccessToken))
			fmt.Printf("    Refresh Token: %s\n", maskString(provider.RefreshToken))

			if !provider.ExpiresAt.IsZero() {
				fmt.Printf("    Expires At: %s\n", provider.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			}
		}

		fmt.Printf("    Models: %v\n", provider.Models)

		if len(provider.ModelWhitelist) > 0 {
			fmt.Printf("    Whitelist: %v\n", provider.ModelWhitelist)
		}

		fmt.Println()
	}

	fmt.Println("Router Configuration:")
	fmt.Printf("  %-15s: %s\n", "Default", cfg.Router.Default)

	if cfg.Router.Embeddings != "" {
		fmt.Printf("  %-15s: %s\n", "Embeddings", cfg.Router.Embeddings)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return errConfigRequired
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var problems []string

	if err := cfg.Validate(); err != nil {
		problems = append(problems, strings.Split(err.Error(), "\n")...)
	}

	if len(cfg.Providers) == 0 {
		problems = append(problems, "no providers configured")
	}

	for _, p := range cfg.Providers {
		if p.ConnectionCredentials().Bearer() == "" && p.RefreshToken == "" {
			color.Yellow("  warning: provider %s has no credentials", p.Name)
		}
	}

	if len(problems) > 0 {
		color.Red("Configuration validation failed:")

		for _, problem := range problems {
			fmt.Printf("  - %s\n", problem)
		}

		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")

	return nil
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	data, err := cfgMgr.Export()
	if err != nil {
		return fmt.Errorf("failed to export configuration: %w", err)
	}

	if len(args) == 0 {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}

	if err := os.WriteFile(args[0], data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}

	color.Green("Configuration exported to: %s", args[0])

	return nil
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	if err := cfgMgr.Import(data); err != nil {
		return err
	}

	color.Green("Configuration imported to: %s", cfgMgr.GetPath())

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
