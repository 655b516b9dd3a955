// Command cdpclient is a small demonstration harness for internal/cdp: it
// dials a browser's DevTools endpoint, sends one command or watches a
// stream of events, and prints the result. It is not a WebDriver
// implementation.
package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/coalmine/cdpsession/internal/cli"
)

// formatCobraError rewrites cobra's mutual-exclusion error text into
// something a user reading a one-line CLI error actually wants to see.
var mutexFlagError = regexp.MustCompile(`if any flags in the group \[([^\]]+)\] are set none of the others can be; \[([^\]]+)\] were all set`)

func formatCobraError(err error) string {
	msg := err.Error()
	if m := mutexFlagError.FindStringSubmatch(msg); m != nil {
		return fmt.Sprintf("flags %s are mutually exclusive; got %s", m[1], m[2])
	}
	return msg
}

func main() {
	if err := cli.Execute(); err != nil {
		if cli.JSONOutput {
			fmt.Fprintf(os.Stderr, `{"error":%q}`+"\n", formatCobraError(err))
		} else {
			fmt.Fprintf(os.Stderr, "cdpclient: %s\n", formatCobraError(err))
		}
		os.Exit(1)
	}
}
