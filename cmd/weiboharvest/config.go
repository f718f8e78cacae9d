package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"weiboharvest/pkg/config"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage weiboharvest configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (WEIBOHARVEST_*)
  - .env files
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create a configuration file holding every option at its default value
plus two example harvests.

The file is written to weiboharvest.yaml unless --config names another
path.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. The access token is masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func exampleConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Harvests = []config.HarvestRequest{
		{Type: "timeline", CollectionID: "home", Incremental: true},
		{Type: "topic_search", Query: "golang", Incremental: true},
	}
	return cfg
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "weiboharvest.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := exampleConfig().Save(path); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Writer(), "\nNext steps:")
	fmt.Fprintln(ui.Writer(), "1. Store a token with 'weiboharvest auth login' or set WEIBOHARVEST_ACCESS_TOKEN")
	fmt.Fprintln(ui.Writer(), "2. Edit the harvests list")
	fmt.Fprintf(ui.Writer(), "3. Run 'weiboharvest harvest -c %s'\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return err
	}

	display := *cfg
	if display.Weibo.AccessToken != "" {
		display.Weibo.AccessToken = logger.MaskToken(display.Weibo.AccessToken)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(ui.Writer(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(configFile, globalFlags()); err != nil {
		return err
	}
	ui.PrintSuccess("Configuration is valid")
	return nil
}
