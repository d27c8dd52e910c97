package feed

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/cryguy/jshost/internal/channel"
)

func TestTicker_TickFormatAndLimit(t *testing.T) {
	tx, rx := channel.New[string]()
	tk, err := NewTicker("@every 1h", 2, tx, nil)
	if err != nil {
		t.Fatalf("NewTicker: %v", err)
	}

	tk.tick()
	tk.tick()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, want := range []string{"SEND [0]", "SEND [1]"} {
		got, err := rx.Recv(ctx)
		if err != nil || got != want {
			t.Fatalf("Recv = %q, %v, want %q", got, err, want)
		}
	}
	if _, err := rx.Recv(ctx); err != channel.ErrClosed {
		t.Fatalf("Recv after limit = %v, want ErrClosed", err)
	}
	if tk.Sent() != 2 {
		t.Errorf("Sent = %d, want 2", tk.Sent())
	}
}

func TestTicker_BadSpec(t *testing.T) {
	tx, _ := channel.New[string]()
	if _, err := NewTicker("not a schedule", 0, tx, nil); err == nil {
		t.Fatal("expected error for bad spec")
	}
}

func TestTicker_StopClosesQueue(t *testing.T) {
	tx, rx := channel.New[string]()
	tk, err := NewTicker("@every 1h", 0, tx, nil)
	if err != nil {
		t.Fatalf("NewTicker: %v", err)
	}
	tk.Start()
	tk.Stop()
	tk.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := rx.Recv(ctx); err != channel.ErrClosed {
		t.Fatalf("Recv = %v, want ErrClosed", err)
	}
}

func TestPrinter_Run(t *testing.T) {
	tx, rx := channel.New[string]()
	_ = tx.Send("one")
	_ = tx.Send("two")
	tx.Close()

	var out bytes.Buffer
	var forwarded []string
	p := &Printer{W: &out, Next: func(_ context.Context, m string) error {
		forwarded = append(forwarded, m)
		return nil
	}}
	if err := p.Run(context.Background(), rx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "RX Msg: one\nRX Msg: two\n[-] RX Channel Closed\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if strings.Join(forwarded, ",") != "one,two" {
		t.Errorf("forwarded = %q", forwarded)
	}
}

func TestAwaitOneshot(t *testing.T) {
	tx, rx := channel.Oneshot[string]()
	_ = tx.Send("ok")
	if got := AwaitOneshot(context.Background(), rx, time.Second); got != "ok" {
		t.Errorf("got %q, want ok", got)
	}

	_, rx2 := channel.Oneshot[string]()
	if got := AwaitOneshot(context.Background(), rx2, 20*time.Millisecond); got != "Timeout" {
		t.Errorf("got %q, want Timeout", got)
	}

	tx3, rx3 := channel.Oneshot[string]()
	tx3.Close()
	if got := AwaitOneshot(context.Background(), rx3, time.Second); got != "Oneshot Err: channel closed" {
		t.Errorf("got %q", got)
	}
}

func TestSocket_PumpAndWrite(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		if err := conn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
			return
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- string(data)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sock, err := DialSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	defer sock.Close()

	tx, rx := channel.New[string]()
	pumpErr := make(chan error, 1)
	go func() { pumpErr <- sock.Pump(ctx, tx) }()

	msg, err := rx.Recv(ctx)
	if err != nil || msg != "hello" {
		t.Fatalf("Recv = %q, %v", msg, err)
	}
	if err := sock.Write(ctx, "from script"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case got := <-received:
		if got != "from script" {
			t.Errorf("server got %q", got)
		}
	case <-ctx.Done():
		t.Fatal("server never received the frame")
	}

	if err := <-pumpErr; err != nil {
		t.Errorf("Pump: %v", err)
	}
	if _, err := rx.Recv(ctx); err != channel.ErrClosed {
		t.Errorf("Recv after close = %v, want ErrClosed", err)
	}
}
