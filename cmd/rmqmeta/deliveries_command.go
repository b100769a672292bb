package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rmqmeta/internal/ipc"
	"rmqmeta/internal/ledger"
)

func newDeliveriesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "deliveries",
		Aliases: []string{"recent"},
		Short:   "List the most recent message outcomes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deliveries, err := loadDeliveries(cmd.Context(), ctx,
				func(client *ipc.Client) (*ipc.DeliveriesResponse, error) { return client.Recent(limit) },
				func(store *ledger.Store) ([]ledger.Entry, error) { return store.Recent(cmd.Context(), limit) },
			)
			if err != nil {
				return err
			}
			return printDeliveries(cmd, deliveries, asJSON)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of deliveries to list")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print deliveries as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "lookup MESSAGE_ID",
		Short: "Show every recorded delivery of one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messageID := strings.TrimSpace(args[0])
			deliveries, err := loadDeliveries(cmd.Context(), ctx,
				func(client *ipc.Client) (*ipc.DeliveriesResponse, error) { return client.Lookup(messageID) },
				func(store *ledger.Store) ([]ledger.Entry, error) { return store.ByMessageID(cmd.Context(), messageID) },
			)
			if err != nil {
				return err
			}
			if len(deliveries) == 0 && !asJSON {
				return fmt.Errorf("no deliveries recorded for message %s", messageID)
			}
			return printDeliveries(cmd, deliveries, asJSON)
		},
	})
	return cmd
}

// loadDeliveries asks the daemon first and reads the ledger file directly
// when no daemon is reachable.
func loadDeliveries(
	runCtx context.Context,
	ctx *commandContext,
	viaDaemon func(*ipc.Client) (*ipc.DeliveriesResponse, error),
	viaLedger func(*ledger.Store) ([]ledger.Entry, error),
) ([]ipc.Delivery, error) {
	alive, _, _ := ctx.instance().Probe()
	if alive {
		var deliveries []ipc.Delivery
		err := ctx.withClient(func(client *ipc.Client) error {
			resp, err := viaDaemon(client)
			if err != nil {
				return err
			}
			deliveries = resp.Deliveries
			return nil
		})
		return deliveries, err
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.LedgerPath()); os.IsNotExist(err) {
		return nil, nil
	}
	if err := runCtx.Err(); err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	entries, err := viaLedger(store)
	if err != nil {
		return nil, err
	}
	deliveries := make([]ipc.Delivery, 0, len(entries))
	for _, e := range entries {
		deliveries = append(deliveries, ipc.FromEntry(e))
	}
	return deliveries, nil
}

func printDeliveries(cmd *cobra.Command, deliveries []ipc.Delivery, asJSON bool) error {
	if asJSON {
		if deliveries == nil {
			deliveries = []ipc.Delivery{}
		}
		return writeJSON(cmd, deliveries)
	}
	if len(deliveries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No deliveries recorded")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderDeliveries(deliveries))
	return nil
}
