package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weiboharvest/pkg/auth"
	"weiboharvest/pkg/config"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	accessToken  string
	accountName  string
	baseURL      string
	logLevel     string
	stateBackend string
	statePath    string
	archiveDir   string
	concurrency  int
	noColor      bool
	quiet        bool
)

var rootCmd = &cobra.Command{
	Use:   "weiboharvest",
	Short: "Harvest Weibo timelines and topic searches",
	Long: `weiboharvest collects posts from the Weibo Open API.

It walks the home timeline and topic searches page by page, waits out
rate limits using the vendor's own quota report, and remembers the newest
post of every harvest so the next run only collects what is new.

Posts are written as JSON lines under the archive directory, one file per
run, next to a JSON report of the run.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColor(false)
		}
		if quiet {
			ui.SetQuietMode(true)
		}
		if cmd.Name() == "harvest" || cmd.Name() == "watch" {
			ui.PrintBanner()
		}
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./weiboharvest.yaml or $HOME/.weiboharvest.yaml)")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "Weibo OAuth2 access token")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&stateBackend, "state-backend", "", "state backend (file, sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state-path", "", "state file or database path")
	rootCmd.PersistentFlags().StringVar(&archiveDir, "archive-dir", "", "directory harvested posts are written to")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of harvests run in parallel")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`weiboharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags in the shape
// config.MergeCommandLineFlags expects
func globalFlags() map[string]interface{} {
	return map[string]interface{}{
		"token":         accessToken,
		"base-url":      baseURL,
		"log-level":     logLevel,
		"state-backend": stateBackend,
		"state-path":    statePath,
		"archive-dir":   archiveDir,
		"concurrency":   concurrency,
	}
}

// setup loads the configuration and initializes the global logger
func setup(extra map[string]interface{}) (*config.Config, logger.Logger, error) {
	flags := globalFlags()
	for k, v := range extra {
		flags[k] = v
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("weiboharvest starting")
	return cfg, log, nil
}

// resolveToken fills cfg.Weibo.AccessToken from the credential stores when
// neither the flag, the config file nor the environment supplied one
func resolveToken(cfg *config.Config, log logger.Logger) error {
	if cfg.Weibo.AccessToken != "" && accountName == "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	explicit := cfg.Weibo.AccessToken
	if accountName != "" {
		explicit = accessToken
	}
	token, err := manager.ResolveToken(explicit, accountName)
	if err != nil {
		if accountName != "" {
			return fmt.Errorf("account %s: %w", accountName, err)
		}
		return fmt.Errorf("no access token: pass --token, set %sACCESS_TOKEN or run 'weiboharvest auth login'", config.EnvPrefix)
	}

	cfg.Weibo.AccessToken = token
	log.WithField("token", logger.MaskToken(token)).Debug("Resolved access token")
	return nil
}

// commandContext returns a context cancelled on SIGINT or SIGTERM
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// shortTimeout bounds one-off API calls made outside a harvest
func shortTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Minute)
}
