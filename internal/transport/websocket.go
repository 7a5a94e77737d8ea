package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// closeWait bounds the close handshake on Close.
const closeWait = time.Second

// WebSocketTarget connects to a simulator or bridge exposing frames over a
// WebSocket. Each binary message carries an arbitrary slice of the byte
// stream; message boundaries carry no meaning.
type WebSocketTarget struct {
	URL    string
	Header http.Header
}

var _ Target = WebSocketTarget{}

// Open performs the WebSocket handshake.
func (t WebSocketTarget) Open(ctx context.Context) (Channel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.URL, t.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.URL, err)
	}
	return NewWebSocketChannel(conn), nil
}

func (t WebSocketTarget) String() string {
	return "ws:" + t.URL
}

// wsChannel adapts a websocket.Conn to a byte stream.
type wsChannel struct {
	conn *websocket.Conn
	r    io.Reader
}

// NewWebSocketChannel wraps an established connection. It is used on both
// ends: by WebSocketTarget and by the simulator server after Upgrade.
func NewWebSocketChannel(conn *websocket.Conn) Channel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			typ, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsChannel) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsChannel) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	return c.conn.Close()
}
