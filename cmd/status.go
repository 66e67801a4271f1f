package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/weclaw/internal/channels/wechat/proxy"
	"github.com/nextlevelbuilder/weclaw/internal/config"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show proxy account status for each configured WeChat account",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed to load config:", err)
				os.Exit(1)
			}

			ids := cfg.Channels.WeChat.ListAccountIDs()
			if len(ids) == 0 {
				fmt.Println("no wechat accounts configured")
				return
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			failed := false
			for _, accountID := range ids {
				account, err := cfg.Channels.WeChat.ResolveAccount(accountID)
				if err != nil {
					fmt.Printf("%s: config error: %v\n", accountID, err)
					failed = true
					continue
				}

				client, err := proxy.NewClient(account.ProxyURL, account.APIKey)
				if err != nil {
					fmt.Printf("%s: %v\n", accountID, err)
					failed = true
					continue
				}

				status, err := client.Status(ctx)
				if err != nil {
					fmt.Printf("%s: %v\n", accountID, err)
					failed = true
					continue
				}

				state := "logged out"
				if status.IsLoggedIn {
					state = "logged in"
				}
				fmt.Printf("%s: %s", accountID, state)
				if status.WcID != "" {
					fmt.Printf(" (%s", status.WcID)
					if status.NickName != "" {
						fmt.Printf(", %s", status.NickName)
					}
					fmt.Print(")")
				}
				if status.Quota != nil {
					fmt.Printf("  quota %d/%d today", status.Quota.UsedToday, status.Quota.MaxMessagesPerDay)
				}
				fmt.Println()
			}

			if failed {
				os.Exit(1)
			}
		},
	}
}
