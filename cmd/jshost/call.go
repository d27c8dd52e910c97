package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <path> [json-arg]",
	Short: "Load scripts, then call a global function",
	Long: `Load the given scripts and modules, then call the function at the dotted
path with an optional JSON argument. A returned promise is awaited and the
result is printed as JSON.`,
	Example: `  jshost call -s 'function add(o) { return o.a + o.b }' add '{"a":1,"b":2}'
  jshost call -m @lib.js api.fetchUser '"ada"'`,
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCall,
}

func init() {
	addLoadFlags(callCmd)
	addFeedFlags(callCmd)
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
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

	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}
	res, err := s.host.Call(ctx, args[0], arg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res)
	return s.host.Idle(ctx)
}
