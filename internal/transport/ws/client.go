package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxels.dev/internal/protocol"
)

// RejectedError is returned by Dial when the server answers HELLO with ERROR.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "ws: rejected: " + e.Code
	}
	return fmt.Sprintf("ws: rejected: %s: %s", e.Code, e.Message)
}

type DialConfig struct {
	URL             string
	Name            string
	ProtocolVersion string
	ProtocolID      uint64
	BytesPerSecond  int
	InboxSize       int
}

// ErrClosed is returned by Send after the session ended.
var ErrClosed = errors.New("ws: connection closed")

// Client is one networked session. Received messages are buffered and handed out by Drain,
// which never blocks; outbound messages go through a per-channel Outbox.
type Client struct {
	conn    *websocket.Conn
	welcome protocol.WelcomeMsg
	out     *Outbox

	in      chan protocol.Message
	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = protocol.Version
	}
	if cfg.ProtocolID == 0 {
		cfg.ProtocolID = protocol.DefaultID
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 8192
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", cfg.URL, err)
	}
	welcome, err := clientHandshake(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		welcome: welcome,
		out:     NewOutbox(protocol.ChannelSetFromParams(welcome.Channels), cfg.BytesPerSecond),
		in:      make(chan protocol.Message, cfg.InboxSize),
		ctx:     cctx,
		cancel:  cancel,
	}
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		defer cancel()
		err := c.out.Run(cctx, func(b []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			return conn.WriteMessage(websocket.BinaryMessage, b)
		})
		c.setErr(err)
	}()
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.setErr(c.readLoop())
	}()
	return c, nil
}

func clientHandshake(conn *websocket.Conn, cfg DialConfig) (protocol.WelcomeMsg, error) {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: cfg.ProtocolVersion,
		ProtocolID:      cfg.ProtocolID,
		Name:            cfg.Name,
	}
	if err := writeJSON(conn, hello); err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("ws: send HELLO: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("ws: read WELCOME: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
	}
	if base.Type == protocol.TypeError {
		var em protocol.ErrorMsg
		if err := json.Unmarshal(msg, &em); err != nil {
			return protocol.WelcomeMsg{}, fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
		}
		code := em.Code
		if !protocol.IsKnownCode(code) {
			// Unknown codes are folded into E_INTERNAL; the raw code stays visible in Message.
			code = protocol.ErrInternal
			em.Message = strings.TrimSpace(em.Code + " " + em.Message)
		}
		return protocol.WelcomeMsg{}, &RejectedError{Code: code, Message: em.Message}
	}
	return protocol.ParseWelcome(msg)
}

func (c *Client) readLoop() error {
	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := protocol.DecodeFrame(msg)
		if err != nil || f.Channel.FromClient() {
			c.dropped.Add(1)
			continue
		}
		m, err := protocol.Decode(f)
		if err != nil {
			c.dropped.Add(1)
			continue
		}
		select {
		case c.in <- m:
		case <-c.ctx.Done():
			return nil
		}
	}
}

func (c *Client) setErr(err error) {
	if err == nil || errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
		return
	}
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *Client) Welcome() protocol.WelcomeMsg { return c.welcome }
func (c *Client) ClientID() uint64             { return c.welcome.ClientID }

// Send queues m on its channel without blocking.
func (c *Client) Send(m protocol.Message) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	return c.out.Send(protocol.Encode(m))
}

// Drain returns up to limit buffered messages (limit <= 0 means all) without blocking.
func (c *Client) Drain(limit int) []protocol.Message {
	var out []protocol.Message
	for limit <= 0 || len(out) < limit {
		select {
		case m := <-c.in:
			out = append(out, m)
		default:
			return out
		}
	}
	return out
}

// Dropped counts received frames discarded as malformed.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Err reports why the session ended, if it failed.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.cancel()
	err := c.conn.Close()
	c.wg.Wait()
	c.out.Close()
	return err
}
