// Package client is a Go client for the WebSocket transport of dflow.
//
// Example usage:
//
//	c, err := client.Dial(ctx, "ws://localhost:8080/ws/votes", client.Options{Token: token})
//	if err != nil { ... }
//	defer c.Close()
//	_ = c.Insert("StoryVoter", delta.NewRow(delta.Int(1), delta.Int(10)))
//	for env := range c.Envelopes() { ... }
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/l7mp/dflow/pkg/delta"
)

const (
	// DefaultBuffer is the number of received envelopes queued before the reader blocks.
	DefaultBuffer = 64
	writeWait     = 10 * time.Second
)

// ErrClosed is returned when writing to a closed client.
var ErrClosed = errors.New("client closed")

// ServerError is an error frame sent by the server in reply to a rejected envelope.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server error: " + e.Message }

// Options configures a client.
type Options struct {
	// Token is sent as a bearer token.
	Token string
	// Buffer is the number of received messages queued. Defaults to DefaultBuffer.
	Buffer int
	// Dialer overrides the WebSocket dialer.
	Dialer *websocket.Dialer
	// Logger is the logger.
	Logger logr.Logger
}

// Client is a WebSocket session on a path.
type Client struct {
	conn      *websocket.Conn
	envelopes chan delta.Envelope
	errors    chan error
	done      chan struct{}
	quit      chan struct{}
	mu        sync.Mutex
	closed    bool
	log       logr.Logger
}

type frame struct {
	Error string `json:"error,omitempty"`
	delta.Envelope
}

// Dial opens a session. The URL names the path, e.g., "ws://localhost:8080/ws/votes".
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	c := &Client{
		conn:      conn,
		envelopes: make(chan delta.Envelope, buffer),
		errors:    make(chan error, buffer),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
		log:       log.WithName("client").WithValues("url", url),
	}
	go c.readLoop()

	return c, nil
}

// Envelopes returns the envelopes of the view. The channel is closed when the session ends.
func (c *Client) Envelopes() <-chan delta.Envelope { return c.envelopes }

// Errors returns the errors the server reports for rejected envelopes, and the error that ended
// the session, if any. The channel is closed when the session ends.
func (c *Client) Errors() <-chan error { return c.errors }

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.errors)
	defer close(c.envelopes)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.V(1).Info("session closed", "error", err.Error())
				c.pushError(err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.pushError(fmt.Errorf("malformed message: %w", err))
			continue
		}

		if f.Error != "" {
			c.pushError(&ServerError{Message: f.Error})
			continue
		}

		select {
		case c.envelopes <- f.Envelope:
		case <-c.quit:
			return
		}
	}
}

func (c *Client) pushError(err error) {
	select {
	case c.errors <- err:
	default:
		c.log.V(1).Info("error dropped", "error", err.Error())
	}
}

// Submit sends a batch of changes to a root.
func (c *Client) Submit(rootID string, changes ...delta.Change) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(delta.NewEnvelope(rootID, changes...))
}

// Insert sends an insertion of rows to a root.
func (c *Client) Insert(rootID string, rows ...delta.Row) error {
	return c.Submit(rootID, delta.NewInsertion(rows...))
}

// Delete sends a deletion of rows to a root.
func (c *Client) Delete(rootID string, rows ...delta.Row) error {
	return c.Submit(rootID, delta.NewDeletion(rows...))
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.mu.Unlock()
	close(c.quit)

	// wait for the server to confirm the close
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}

	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}

	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
