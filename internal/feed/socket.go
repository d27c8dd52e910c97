package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/cryguy/jshost/internal/channel"
	"github.com/hashicorp/go-hclog"
)

// MaxMessageBytes bounds a single incoming websocket frame.
const MaxMessageBytes = 1 << 20

// Socket bridges a websocket connection to the script queues: incoming text
// frames feed recv and messages sent by script are written back.
type Socket struct {
	conn *websocket.Conn
	url  string
	log  hclog.Logger
}

// DialSocket connects to url.
func DialSocket(ctx context.Context, url string, logger hclog.Logger) (*Socket, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	conn.SetReadLimit(MaxMessageBytes)
	return &Socket{conn: conn, url: url, log: logger}, nil
}

// Pump reads frames into tx until the connection or ctx ends, then closes
// tx so pending receives reject with channel closed.
func (s *Socket) Pump(ctx context.Context, tx *channel.Sender[string]) error {
	defer tx.Close()
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", s.url, err)
		}
		if typ != websocket.MessageText {
			s.log.Debug("ignoring binary frame", "bytes", len(data))
			continue
		}
		if err := tx.Send(string(data)); err != nil {
			s.log.Warn("dropping frame", "error", err)
			return nil
		}
	}
}

// Write sends msg as a text frame.
func (s *Socket) Write(ctx context.Context, msg string) error {
	return s.conn.Write(ctx, websocket.MessageText, []byte(msg))
}

// Close closes the connection normally.
func (s *Socket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
