package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/weclaw/internal/config"
	"github.com/nextlevelbuilder/weclaw/internal/store"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage DM pairing requests",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingApproveCmd())
	return cmd
}

func openPairingStoreOrExit() store.PairingStore {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	ps, err := store.NewSQLitePairingStore(config.ExpandHome(cfg.Pairing.Database))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return ps
}

func pairingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending pairing requests",
		Run: func(cmd *cobra.Command, args []string) {
			ps := openPairingStoreOrExit()
			defer ps.Close()

			pending, err := ps.ListPending()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if len(pending) == 0 {
				fmt.Println("no pending pairing requests")
				return
			}
			for _, req := range pending {
				fmt.Printf("%s  %s/%s  requested %s\n",
					req.Code, req.Channel, req.SenderID,
					req.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
		},
	}
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pairing request by code",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ps := openPairingStoreOrExit()
			defer ps.Close()

			senderID, err := ps.Approve(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("paired %s\n", senderID)
		},
	}
}
