package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"weiboharvest/pkg/auth"
	"weiboharvest/pkg/config"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/ui"
	"weiboharvest/pkg/weibo"
)

var (
	loginExpiresIn time.Duration
	loginVerify    bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Weibo access tokens",
	Long: `Manage stored Weibo OAuth2 access tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - WEIBOHARVEST_ACCESS_TOKEN (read only)

Never share your tokens or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store an access token securely",
	Long: `Store a Weibo access token in the system keychain or encrypted file.

Run 'weiboharvest auth guide' to see how to obtain a token.`,
	Example: `  # Interactive login
  weiboharvest auth login

  # Store a token under a name, check it against the API and record its expiry
  weiboharvest auth login research --verify --expires-in 720h`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <name>",
	Short: "Remove a stored token",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Long:  `List all stored accounts with masked tokens, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to obtain an access token",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.WriteTokenGuide(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(guideCmd)

	loginCmd.Flags().DurationVar(&loginExpiresIn, "expires-in", 0, "token lifetime as reported by the OAuth2 exchange")
	loginCmd.Flags().BoolVar(&loginVerify, "verify", false, "check the token against the API before storing it")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	} else {
		fmt.Print("Account name [default]: ")
		input, _ := reader.ReadString('\n')
		if input = strings.TrimSpace(input); input != "" {
			name = input
		}
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its token? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Access token (hidden): ")
	token, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return auth.ErrInvalidCredentials
	}

	account := &auth.Account{Name: name, AccessToken: token}
	if loginExpiresIn > 0 {
		expires := time.Now().Add(loginExpiresIn)
		account.ExpiresAt = &expires
	}

	if loginVerify {
		uid, err := verifyToken(cmd, token)
		if err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}
		account.UID = uid
		ui.PrintInfo("Authenticated as uid", fmt.Sprint(uid))
	}

	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	ui.PrintSuccess("Token stored for " + name)
	fmt.Println("\nHarvest with it:")
	fmt.Printf("  $ weiboharvest harvest --account %s --type timeline --collection home\n", name)
	return nil
}

// verifyToken resolves the account uid, which fails fast on a bad token
func verifyToken(cmd *cobra.Command, token string) (int64, error) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return 0, err
	}
	cfg.Weibo.AccessToken = token

	client, err := weibo.NewClient(weibo.OptionsFromConfig(cfg), logger.NewNopLogger())
	if err != nil {
		return 0, err
	}
	ctx, cancel := shortTimeout(cmd.Context())
	defer cancel()
	return client.UserID(ctx)
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove %s: %w", args[0], err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'weiboharvest auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	w := ui.Writer()
	now := time.Now()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(w, "%d. %s (%s)\n", i+1, sanitized.Name, account.Source)
		fmt.Fprintf(w, "   Token: %s\n", sanitized.AccessToken)
		if account.UID != 0 {
			fmt.Fprintf(w, "   UID: %d\n", account.UID)
		}
		if account.ExpiresAt != nil {
			status := "valid"
			if account.Expired(now) {
				status = ui.Red("expired")
			}
			fmt.Fprintf(w, "   Expires: %s (%s)\n", account.ExpiresAt.Format("2006-01-02 15:04:05"), status)
		}
		fmt.Fprintf(w, "   Last Modified: %s\n\n", account.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
