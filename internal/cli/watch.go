package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coalmine/cdpsession/internal/cdp"
)

func newWatchCommand() *cobra.Command {
	var prefix string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print CDP events as they arrive, optionally filtered by method prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), duration+5*time.Second)
			defer cancel()

			node, err := connectRoot(ctx)
			if err != nil {
				return err
			}

			started := time.Now()
			node.AddListener(cdp.ListenerFuncs{
				OnEventFunc: func(n *cdp.Node, method string, params json.RawMessage) error {
					if prefix != "" && !strings.HasPrefix(method, prefix) {
						return nil
					}
					if JSONOutput {
						fmt.Printf(`{"method":%q,"params":%s}`+"\n", method, params)
						return nil
					}
					printEvent(method, time.Since(started))
					return nil
				},
			})

			deadline := time.Now().Add(duration)
			err = node.HandleEventsUntil(ctx, func() (bool, error) {
				return time.Now().After(deadline), nil
			}, duration)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only print events whose method starts with this domain prefix, e.g. Network.")
	cmd.Flags().DurationVar(&duration, "for", 10*time.Second, "how long to watch before exiting")
	return cmd
}
