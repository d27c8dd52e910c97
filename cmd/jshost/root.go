package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/cryguy/jshost"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jshost",
	Short: "Embedded JavaScript host with channel-backed promises",
	Long: `jshost - Run JavaScript in an embedded engine bridged to Go channels.

Scripts get print, print_v, console, sleep, timers and globals, plus three
channel adapters that return promises:

  send(msg)     queue msg for the host (printed as "RX Msg: <msg>")
  recv()        await the next host message (--tick and --ws feed it)
  resolve(msg)  fire the one-shot signal (reported as "Channel RX: <msg>")

Script arguments may be literal source, @file or - for stdin. Execution
order is modules, scripts, REPL, then calls.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("journal", "", "Record channel traffic to this SQLite file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	addLoadFlags(rootCmd)
	rootCmd.Flags().Bool("repl", false, "Start an interactive REPL after loading scripts")
	rootCmd.Flags().StringArray("call", nil, "Call a global function by dotted path (repeatable)")
	rootCmd.Flags().StringArray("arg", nil, "JSON argument for the matching --call (repeatable)")
	addFeedFlags(rootCmd)
	rootCmd.Flags().Duration("resolve-timeout", 0, "Wait this long for resolve() before reporting Timeout")
}

// addLoadFlags adds the flags naming scripts and modules to load.
func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("script", "s", nil, "Script to run: source, @file or - (repeatable)")
	cmd.Flags().StringArrayP("module", "m", nil, "ES module to run: source, @file or - (repeatable)")
}

// addFeedFlags adds the flags attaching message feeds to recv().
func addFeedFlags(cmd *cobra.Command) {
	cmd.Flags().String("tick", "", `Feed recv() with "SEND [n]" on a cron schedule, e.g. "@every 2s"`)
	cmd.Flags().Int("tick-count", 0, "Stop ticking after this many messages (0 = never)")
	cmd.Flags().String("ws", "", "Websocket URL: text frames feed recv(), send() messages are written back")
}

func runRoot(cmd *cobra.Command, args []string) error {
	scripts, _ := cmd.Flags().GetStringArray("script")
	mods, _ := cmd.Flags().GetStringArray("module")
	repl, _ := cmd.Flags().GetBool("repl")
	calls, _ := cmd.Flags().GetStringArray("call")
	callArgs, _ := cmd.Flags().GetStringArray("arg")
	resolveTimeout, _ := cmd.Flags().GetDuration("resolve-timeout")

	if len(scripts) == 0 && len(mods) == 0 && len(calls) == 0 && !repl {
		return cmd.Help()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.load(ctx, cmd); err != nil {
		return err
	}

	if repl {
		if err := runREPL(ctx, s); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	for i, path := range calls {
		arg := ""
		if i < len(callArgs) {
			arg = callArgs[i]
		}
		res, err := s.host.Call(ctx, path, arg)
		if err != nil {
			return fmt.Errorf("call %s: %w", path, err)
		}
		fmt.Fprintf(out, "[+] Call: %s(%s) => %s\n", path, arg, res)
	}

	fmt.Fprintf(out, "[+] Tasks Pending: %v\n", s.host.Pending())
	if err := s.host.Idle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	s.reportOneshot(ctx, out, resolveTimeout)
	return nil
}

// printError writes err in red. Script errors carry their stack.
func printError(w io.Writer, err error) {
	red := color.New(color.FgRed)
	var se *jshost.ScriptError
	if errors.As(err, &se) {
		red.Fprintln(w, se.Error())
		return
	}
	red.Fprintf(w, "Error: %v\n", err)
}

// shutdownGrace bounds how long feeds get to finish after the host closes.
const shutdownGrace = 2 * time.Second
