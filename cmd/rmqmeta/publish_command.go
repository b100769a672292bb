package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rmqmeta/internal/config"
	"rmqmeta/internal/transport"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var routingKey string
	var encode bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "publish FILE",
		Short: "Publish a document to the configured exchange",
		Long: "Publishes FILE to the exchange with the given routing key and waits for the broker\n" +
			"to confirm it. Use --encode for routes whose stype is Encoded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			routingKey = strings.TrimSpace(routingKey)
			if routingKey == "" {
				return fmt.Errorf("--routing-key is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			route, known := cfg.RouteFor(routingKey)
			if known && route.Encoded() && !encode {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: route %s expects base64 bodies; pass --encode\n", route.Queue)
			}

			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			if encode {
				body = []byte(base64.StdEncoding.EncodeToString(body))
			}

			publisher, err := transport.DialPublisher(cfg)
			if err != nil {
				return err
			}
			defer publisher.Close()

			publishCtx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()
			id, err := publisher.Publish(publishCtx, routingKey, body)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Published %s (%d bytes) to %s with routing key %s\n", id, len(body), cfg.RabbitMQ.ExchangeName, routingKey)
			if !known {
				fmt.Fprintln(out, "No route matches this routing key; the daemon will quarantine it as unrouted if a queue receives it")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&routingKey, "routing-key", "k", "", "Routing key to publish with")
	cmd.Flags().BoolVar(&encode, "encode", false, "Base64-encode the document body")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the broker confirm")
	return cmd
}
