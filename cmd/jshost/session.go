package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cryguy/jshost"
	"github.com/cryguy/jshost/internal/feed"
	"github.com/cryguy/jshost/internal/journal"
	"github.com/spf13/cobra"
)

// session is one host wired to the demo channels and feeds.
type session struct {
	cfg     jshost.Config
	host    *jshost.Host
	journal *journal.Journal
	ticker  *feed.Ticker
	socket  *feed.Socket
	sendTx  *jshost.Sender[string]
	oneshot *jshost.OneshotReceiver[string]
	stdin   io.Reader
	out     io.Writer
	errOut  io.Writer

	cancel context.CancelFunc
	feeds  sync.WaitGroup
}

// openSession builds a host from the persistent and feed flags of cmd.
// Scripts see send, recv and resolve as globals.
func openSession(ctx context.Context, cmd *cobra.Command) (_ *session, err error) {
	configPath, _ := cmd.Flags().GetString("config")
	journalPath, _ := cmd.Flags().GetString("journal")
	logLevel, _ := cmd.Flags().GetString("log-level")

	cfg, err := jshost.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	feedCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:    cfg,
		stdin:  cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		cancel: cancel,
	}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	logger := jshost.NewLogger(cfg.LogLevel, s.errOut)
	opts := []jshost.Option{
		jshost.WithOutput(s.out),
		jshost.WithErrorOutput(s.errOut),
		jshost.WithLogger(logger),
	}
	if journalPath != "" {
		s.journal, err = journal.Open(journalPath, logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, jshost.WithRecorder(s.journal))
	}

	s.host, err = jshost.New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	// send: script -> printer (and the socket, when connected)
	sendTx, sendRx := jshost.NewChannel[string]()
	s.sendTx = sendTx
	if err := jshost.RegisterSender(s.host, "send", sendTx); err != nil {
		return nil, err
	}

	// recv: ticker and socket -> script. This sender handle is closed
	// once the feeds hold their clones, so recv fails after they all stop.
	recvTx, recvRx := jshost.NewChannel[string]()
	defer recvTx.Close()
	if err := jshost.RegisterReceiver(s.host, "recv", recvRx); err != nil {
		return nil, err
	}

	if wsURL, _ := cmd.Flags().GetString("ws"); wsURL != "" {
		s.socket, err = feed.DialSocket(feedCtx, wsURL, logger.Named("ws"))
		if err != nil {
			return nil, err
		}
		tx := recvTx.Clone()
		s.feeds.Add(1)
		go func() {
			defer s.feeds.Done()
			if err := s.socket.Pump(feedCtx, tx); err != nil {
				logger.Warn("websocket feed stopped", "error", err)
			}
		}()
	}

	if spec, _ := cmd.Flags().GetString("tick"); spec != "" {
		count, _ := cmd.Flags().GetInt("tick-count")
		tx := recvTx.Clone()
		s.ticker, err = feed.NewTicker(spec, count, tx, logger.Named("tick"))
		if err != nil {
			tx.Close()
			return nil, err
		}
		s.ticker.Start()
	}

	printer := &feed.Printer{W: s.out, Log: logger.Named("printer")}
	if s.socket != nil {
		printer.Next = s.socket.Write
	}
	s.feeds.Add(1)
	go func() {
		defer s.feeds.Done()
		printer.Run(feedCtx, sendRx)
	}()

	// resolve: one-shot signal reported after the run
	oneTx, oneRx := jshost.NewOneshot[string]()
	if err := jshost.RegisterOneshot(s.host, "resolve", oneTx); err != nil {
		return nil, err
	}
	s.oneshot = oneRx
	return s, nil
}

// load runs the --module sources, then the --script sources, in order.
func (s *session) load(ctx context.Context, cmd *cobra.Command) error {
	mods, _ := cmd.Flags().GetStringArray("module")
	for _, arg := range mods {
		script, err := jshost.GetScript(arg, s.stdin)
		if err != nil {
			return err
		}
		name := script.Name
		if name == "<arg>" || name == "<stdin>" {
			name = "main.js"
		}
		if err := s.host.RunModule(ctx, name, script.Source); err != nil {
			return err
		}
	}

	scripts, _ := cmd.Flags().GetStringArray("script")
	for _, arg := range scripts {
		script, err := jshost.GetScript(arg, s.stdin)
		if err != nil {
			return err
		}
		if _, err := s.host.Eval(ctx, script.Source); err != nil {
			return err
		}
	}
	return nil
}

// reportOneshot prints "Channel RX: <outcome>". With no timeout it only
// reports a signal that already fired.
func (s *session) reportOneshot(ctx context.Context, w io.Writer, timeout time.Duration) {
	if timeout <= 0 {
		select {
		case <-s.oneshot.Done():
		default:
			return
		}
		timeout = time.Millisecond
	}
	fmt.Fprintf(w, "Channel RX: %s\n", feed.AwaitOneshot(ctx, s.oneshot, timeout))
}

// close stops the feeds, closes the host and waits for the printer to
// report the closed queue.
func (s *session) close() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.host != nil {
		s.host.Close()
	}
	if s.sendTx != nil {
		s.sendTx.Close()
	}
	if s.socket != nil {
		s.socket.Close()
	}

	done := make(chan struct{})
	go func() {
		s.feeds.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
	}
	s.cancel()

	if s.journal != nil {
		s.journal.Close()
	}
}
