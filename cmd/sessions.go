package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenworks/gemgate/internal/config"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted chat sessions",
	}
	cmd.AddCommand(sessionsListCmd(), sessionsDeleteCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			store, closeStore, err := openSessionStore(cfg.Snapshot().Sessions)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := store.LoadAll()
			if err != nil {
				return err
			}
			sort.Slice(records, func(i, j int) bool {
				return records[i].UpdatedAt.After(records[j].UpdatedAt)
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tMESSAGES\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%d\t%s\n", r.ID, len(r.Messages), r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a persisted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			store, closeStore, err := openSessionStore(cfg.Snapshot().Sessions)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
