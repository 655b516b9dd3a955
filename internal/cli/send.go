package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSendCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send METHOD [JSON-PARAMS]",
		Short: "Send one CDP command and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("params argument is not valid JSON: %s", args[1])
				}
				params = json.RawMessage(args[1])
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			node, err := connectRoot(ctx)
			if err != nil {
				return err
			}

			result, err := node.SendCommand(ctx, method, params)
			if err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}

			if JSONOutput {
				fmt.Println(string(result))
				return nil
			}
			printSuccess("%s -> %s", method, result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the response")
	return cmd
}
