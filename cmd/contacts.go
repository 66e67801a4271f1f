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

func contactsCmd() *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List friends and chatrooms of a logged-in WeChat account",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed to load config:", err)
				os.Exit(1)
			}

			account, err := cfg.Channels.WeChat.ResolveAccount(accountID)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			client, err := proxy.NewClient(account.ProxyURL, account.APIKey)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			wcID := account.WcID
			if wcID == "" {
				status, err := client.Status(ctx)
				if err != nil {
					fmt.Fprintln(os.Stderr, "status check failed:", err)
					os.Exit(1)
				}
				if !status.IsLoggedIn {
					fmt.Fprintln(os.Stderr, "account is not logged in, start the gateway first")
					os.Exit(1)
				}
				wcID = status.WcID
			}

			contacts, err := client.GetContacts(ctx, wcID)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			fmt.Printf("friends (%d):\n", len(contacts.Friends))
			for _, f := range contacts.Friends {
				fmt.Println("  " + f)
			}
			fmt.Printf("chatrooms (%d):\n", len(contacts.Chatrooms))
			for _, r := range contacts.Chatrooms {
				fmt.Println("  " + r)
			}
		},
	}

	cmd.Flags().StringVar(&accountID, "account", config.DefaultAccountID, "wechat account id")
	return cmd
}
