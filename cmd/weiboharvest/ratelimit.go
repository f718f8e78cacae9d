package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"weiboharvest/pkg/ui"
	"weiboharvest/pkg/weibo"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the remaining API budget",
	Long: `Ask the API how many calls remain in the current window for the
token and the calling IP.`,
	Args: cobra.NoArgs,
	RunE: runRateLimit,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the uid the access token belongs to",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "List the accounts the token's owner follows",
	Long: `List the accounts followed by the token's owner. The API only returns
friends that have also authorized the application.`,
	Args: cobra.NoArgs,
	RunE: runFriends,
}

var expandCmd = &cobra.Command{
	Use:     "expand <short-url>...",
	Short:   "Expand t.cn short links",
	Example: `  weiboharvest expand http://t.cn/A6abcdEF http://t.cn/A6ghijKL`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runExpand,
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(friendsCmd)
	rootCmd.AddCommand(expandCmd)
}

// newClient loads the configuration, resolves the token and builds a client
func newClient() (*weibo.Client, error) {
	cfg, log, err := setup(nil)
	if err != nil {
		return nil, err
	}
	if err := resolveToken(cfg, log); err != nil {
		return nil, err
	}
	return weibo.NewClient(weibo.OptionsFromConfig(cfg), log)
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := shortTimeout(cmd.Context())
	defer cancel()

	snapshot, err := client.RateLimitStatus(ctx)
	if err != nil {
		return err
	}
	ui.PrintSnapshot(*snapshot)
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := shortTimeout(cmd.Context())
	defer cancel()

	uid, err := client.UserID(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(ui.Writer(), uid)
	return nil
}

func runFriends(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	users, err := client.FriendsList(ctx)
	if err != nil && len(users) == 0 {
		return err
	}

	tw := tabwriter.NewWriter(ui.Writer(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tSCREEN NAME")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\n", u.ID, u.ScreenName)
	}
	tw.Flush()

	if err != nil {
		ui.PrintWarning("Friend list is incomplete", err)
	}
	return nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := shortTimeout(cmd.Context())
	defer cancel()

	urls, err := client.ExpandShortURLs(ctx, args)
	for _, u := range urls {
		if !u.Result {
			ui.PrintWarning("Not expanded", u.Short)
			continue
		}
		fmt.Fprintf(ui.Writer(), "%s\t%s\n", u.Short, u.Long)
	}
	return err
}
