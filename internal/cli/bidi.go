package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBidiSendCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "bidi-send JSON-COMMAND",
		Short: "Tunnel one WebDriver BiDi command over the CDP connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var command map[string]any
			if err := json.Unmarshal([]byte(args[0]), &command); err != nil {
				return fmt.Errorf("command argument is not a JSON object: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			node, err := connectRoot(ctx)
			if err != nil {
				return err
			}

			if err := node.SendBidiCommand(ctx, command); err != nil {
				return fmt.Errorf("bidi-send: %w", err)
			}

			if JSONOutput {
				fmt.Println(`{"status":"sent"}`)
				return nil
			}
			printSuccess("bidi command sent, watch for its reply with the watch subcommand")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the tunneling Runtime.evaluate call to be written")
	return cmd
}
