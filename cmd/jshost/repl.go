package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL with channel-backed globals",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)
  - Multi-line input while brackets are unbalanced
  - Timers and pending recv() calls keep running between lines

The last non-undefined result is kept in _. Type 'exit' or 'quit' to end
the session, or press Ctrl+C or Ctrl+D.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if history, _ := cmd.Flags().GetString("history"); history != "" {
			s.cfg.HistoryFile = history
		}
		return runREPL(ctx, s)
	},
}

func init() {
	addLoadFlags(replCmd)
	addFeedFlags(replCmd)
	replCmd.Flags().String("history", "", "History file path (default: ~/.jshost_history)")
	rootCmd.AddCommand(replCmd)
}

// runREPL reads lines until exit, evaluating each complete input. The
// host serves timers and settlements in the background.
func runREPL(ctx context.Context, s *session) error {
	historyFile := s.cfg.HistoryFile
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".jshost_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	serveCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.host.Serve(serveCtx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	fmt.Fprintf(s.errOut, "jshost %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", s.host.Backend())

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(s.errOut, "<CTRL-C>")
			return nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.errOut, "<CTRL-D>")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		buf.WriteString(line)
		buf.WriteString("\n")
		if needsMoreInput(buf.String()) {
			rl.SetPrompt("... ")
			continue
		}
		src := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt(">>> ")

		if src == "" {
			continue
		}
		if src == "exit" || src == "quit" {
			return nil
		}

		res, err := s.host.Eval(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			printError(s.errOut, err)
			continue
		}
		if res != "undefined" {
			fmt.Fprintln(s.out, res)
		}
	}
}
