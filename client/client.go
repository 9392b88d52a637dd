// Package client implements kedung's single-connection correlating client:
// one Unix socket connection shared by any number of concurrent callers,
// each tagged with a unique correlation token so replies can be routed back
// to the right caller regardless of the order the server answers in.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xpecel/kedung/internal/wire"
	"github.com/xpecel/kedung/internal/wireerr"
)

const injectedDataKey = "injected_data"

const readBufferSize = 512 * 1024

// Client holds one connection to a kedung server and the pending-request
// table the reader goroutine and callers' Send calls share.
type Client struct {
	conn   net.Conn
	codec  *wire.Codec
	logger zerolog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan map[string]any

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to a kedung Unix socket at sockPath and starts the reader
// goroutine that correlates incoming replies to pending Send calls.
func Dial(sockPath string, prefixWidth int, logger zerolog.Logger) (*Client, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sockPath, err)
	}

	c := &Client{
		conn:    conn,
		codec:   wire.NewCodec(prefixWidth),
		logger:  logger,
		pending: make(map[string]chan map[string]any),
		closed:  make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

// Close closes the underlying connection; any still-pending Send calls
// will fail once their context is done, since no more replies will ever
// arrive.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// Send issues command with data, blocking until the matching reply arrives
// or ctx is done. Per spec.md §4.F, every command except FLUSH requires
// non-empty data; violating that is a client-side MissingComponentError
// raised synchronously, without ever touching the socket.
func (c *Client) Send(ctx context.Context, command string, data map[string]any) (map[string]any, error) {
	if len(data) == 0 {
		if command != "FLUSH" {
			return nil, &wireerr.MissingComponentError{
				Reason: "Kecuali command `FLUSH`, argumen `data` tidak boleh kosong",
			}
		}
		data = map[string]any{}
	}

	token := newToken(command)

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[injectedDataKey] = token

	envelope := map[string]any{"command": command, "data": payload}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	framed, err := c.codec.Encode(encoded)
	if err != nil {
		return nil, fmt.Errorf("framing command: %w", err)
	}

	replyCh := make(chan map[string]any, 1)
	c.pendingMu.Lock()
	c.pending[token] = replyCh
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	_, writeErr := c.conn.Write(framed)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.pendingMu.Lock()
		delete(c.pending, token)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("writing command: %w", writeErr)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, token)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("waiting for reply to %s: %w", token, ctx.Err())
	}
}

// readLoop reads frames off the connection, decodes each reply, strips its
// correlation token, and delivers the remainder to that token's waiting
// Send call. An unknown token (a reply for a request this client never
// sent, or whose pending entry already timed out) is silently dropped
// except for a debug log line, per spec.md §4.F.
func (c *Client) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				c.logger.Info().Err(err).Msg("client read error, connection closed")
			}
			return
		}

		frames, err := c.codec.Feed(buf[:n])
		if err != nil {
			c.logger.Warn().Err(err).Msg("client frame decode error")
			continue
		}

		for _, frame := range frames {
			c.deliver(frame)
		}
	}
}

func (c *Client) deliver(frame []byte) {
	var reply map[string]any
	if err := json.Unmarshal(frame, &reply); err != nil {
		c.logger.Warn().Err(err).Msg("client received malformed reply frame")
		return
	}

	token, _ := reply[injectedDataKey].(string)
	delete(reply, injectedDataKey)

	c.pendingMu.Lock()
	ch, ok := c.pending[token]
	if ok {
		delete(c.pending, token)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug().Str("token", token).Msg("dropping reply for unknown or expired token")
		return
	}

	ch <- reply
}
