// Package cli wires internal/cdp into a small cobra command tree: enough
// to send one command or watch a stream of events against a running
// browser, not a WebDriver implementation.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coalmine/cdpsession/internal/browser"
	"github.com/coalmine/cdpsession/internal/cdp"
)

var (
	flagURL    string
	flagHost   string
	flagPort   int
	flagTarget string

	// Debug gates the connection/error status lines printed to stderr.
	Debug bool
	// JSONOutput switches command output (and top-level error output in
	// main) to a single JSON line instead of colorized text.
	JSONOutput bool
	// NoColor forces plain output even on a TTY.
	NoColor bool
)

var rootCmd = &cobra.Command{
	Use:           "cdpclient",
	Short:         "Send a Chrome DevTools Protocol command, or watch events",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "WebSocket debugger URL (ws://host:port/devtools/browser/...)")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "localhost", "debugger HTTP host, used to discover --url when it is not set")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 9222, "debugger HTTP port")
	rootCmd.PersistentFlags().StringVar(&flagTarget, "target", "", "target id to attach a child session to, instead of using the root browser session")
	rootCmd.PersistentFlags().BoolVar(&JSONOutput, "json", false, "print machine-readable JSON instead of colorized text")
	rootCmd.PersistentFlags().BoolVar(&NoColor, "no-color", false, "disable colorized output even on a TTY")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "print connection status to stderr")

	rootCmd.AddCommand(newSendCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newBidiSendCommand())
}

// Execute runs the command tree; main() is responsible for formatting
// whatever error it returns.
func Execute() error {
	return rootCmd.Execute()
}

func debugf(format string, args ...any) {
	if Debug {
		fmt.Fprintf(os.Stderr, "cdpclient: "+format+"\n", args...)
	}
}

func colorEnabled() bool {
	if NoColor || JSONOutput {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// resolveDebuggerURL returns the root session's WebSocket URL, using
// --url verbatim if set, otherwise discovering it from the debugger's
// HTTP surface via internal/browser.
func resolveDebuggerURL(ctx context.Context) (string, error) {
	if flagURL != "" {
		return flagURL, nil
	}

	debugf("discovering debugger endpoint at %s:%d", flagHost, flagPort)
	info, err := browser.FetchVersion(ctx, flagHost, flagPort)
	if err != nil {
		return "", fmt.Errorf("discover debugger endpoint: %w", err)
	}
	if info.WebSocketURL == "" {
		return "", fmt.Errorf("debugger at %s:%d did not report a WebSocket URL", flagHost, flagPort)
	}
	return info.WebSocketURL, nil
}

// connectRoot dials the root browser session and, if --target was given,
// attaches and returns a child session in its place.
func connectRoot(ctx context.Context) (*cdp.Node, error) {
	url, err := resolveDebuggerURL(ctx)
	if err != nil {
		return nil, err
	}

	root := cdp.NewRootNode(cdp.BrowserwideNodeID, url, cdp.NewTransport())
	debugf("connecting to %s", url)
	if err := root.ConnectIfNecessary(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if flagTarget == "" {
		return root, nil
	}

	targets, err := browser.FetchTargets(ctx, flagHost, flagPort)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	var found bool
	for _, t := range targets {
		if t.ID == flagTarget {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("no target with id %q", flagTarget)
	}

	sessionID, err := attachToTarget(ctx, root, flagTarget)
	if err != nil {
		return nil, fmt.Errorf("attach to target %q: %w", flagTarget, err)
	}

	child := cdp.NewChildNode(flagTarget, sessionID)
	if err := child.Attach(ctx, root); err != nil {
		return nil, fmt.Errorf("attach to target %q: %w", flagTarget, err)
	}
	return child, nil
}

// attachToTarget issues Target.attachToTarget on the root session and
// returns the sessionId the browser assigns. That id, not the target id
// itself, is the opaque token every subsequent command scoped to this
// target must carry.
func attachToTarget(ctx context.Context, root *cdp.Node, targetID string) (string, error) {
	result, err := root.SendCommand(ctx, "Target.attachToTarget", map[string]any{
		"targetId": targetID,
		"flatten":  true,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("decode Target.attachToTarget result: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("Target.attachToTarget did not return a sessionId")
	}
	return resp.SessionID, nil
}

func printSuccess(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if colorEnabled() {
		color.New(color.FgGreen).Fprintln(os.Stdout, line)
		return
	}
	fmt.Fprintln(os.Stdout, line)
}

func printEvent(method string, elapsed time.Duration) {
	line := fmt.Sprintf("[%8s] %s", elapsed.Round(time.Millisecond), method)
	if colorEnabled() {
		color.New(color.FgCyan).Fprintln(os.Stdout, line)
		return
	}
	fmt.Fprintln(os.Stdout, line)
}
