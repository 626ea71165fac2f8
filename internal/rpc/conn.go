package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/dshills/copilot-bridge/internal/logging"
)

// NotificationHandler receives server-initiated notifications in the
// order they arrive. It must not issue blocking calls on the same
// connection.
type NotificationHandler func(*Notification)

// RequestHandler handles a server-to-client request. It returns the
// result value or an error object to send back.
type RequestHandler func(*Request) (any, *RPCError)

// SendTap observes every outbound request just before it is written.
type SendTap func(id ID, method string)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithNotificationHandler sets the inbound notification sink.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(c *Conn) { c.onNotify = h }
}

// WithRequestHandler sets the handler for server-to-client requests.
// Without one, such requests are answered with a method-not-found
// error so the server never hangs waiting on a reply.
func WithRequestHandler(h RequestHandler) Option {
	return func(c *Conn) { c.onRequest = h }
}

// WithSendTap registers an observer for outbound request ids.
func WithSendTap(t SendTap) Option {
	return func(c *Conn) { c.onSend = t }
}

// WithCloser attaches a closer invoked by Close, typically the child
// process's stdin pipe.
func WithCloser(closer io.Closer) Option {
	return func(c *Conn) { c.closer = closer }
}

// Conn is a JSON-RPC 2.0 connection over a framed byte stream.
//
// One background goroutine drains inbound frames for the connection's
// lifetime. Responses resolve their pending request by id; request
// ordering never matters. Closing the connection fails every pending
// request exactly once with ErrServerUnavailable.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *logging.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[string]chan *Response

	onNotify  NotificationHandler
	onRequest RequestHandler
	onSend    SendTap

	notifCh  chan *Notification
	done     chan struct{}
	downOnce sync.Once
	closed   atomic.Bool
}

// NewConn creates a connection over the given stream pair and starts
// its read loop.
func NewConn(r io.Reader, w io.Writer, opts ...Option) *Conn {
	c := &Conn{
		reader:  bufio.NewReader(r),
		writer:  w,
		logger:  logging.Null,
		pending: make(map[string]chan *Response),
		notifCh: make(chan *Notification, 64),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.notifyLoop()
	go c.readLoop()
	return c
}

// Call sends a request and decodes the matching response into result.
// A nil result discards the response payload. Returns *RPCError when
// the server replies with an error object, ErrServerUnavailable when
// the connection dies first.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	raw, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", ErrProtocol, method, err)
	}
	return nil
}

// CallRaw sends a request and returns the raw result payload.
func (c *Conn) CallRaw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrServerUnavailable
	}

	p, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := IntID(c.nextID.Add(1))
	ch := make(chan *Response, 1)

	c.mu.Lock()
	c.pending[id.Key()] = ch
	c.mu.Unlock()

	if c.onSend != nil {
		c.onSend(id, method)
	}

	req := &Request{JSONRPC: Version, ID: id, Method: method, Params: p}
	if err := c.writeMessage(req); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrServerUnavailable
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrServerUnavailable
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify sends a notification. No reply is expected.
func (c *Conn) Notify(method string, params any) error {
	if c.closed.Load() {
		return ErrServerUnavailable
	}
	p, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.writeMessage(&Notification{JSONRPC: Version, Method: method, Params: p})
}

// Cancel asks the server to abandon the request with the given id.
func (c *Conn) Cancel(id ID) error {
	return c.Notify("$/cancelRequest", map[string]json.RawMessage{"id": id.raw})
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed reports whether the connection has shut down.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Close shuts the connection down. It is idempotent. All pending
// requests resolve with ErrServerUnavailable.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.closer != nil {
		_ = c.closer.Close()
	}
	c.teardown()
	return nil
}

func (c *Conn) writeMessage(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.writer, payload)
}

func (c *Conn) removePending(id ID) {
	c.mu.Lock()
	delete(c.pending, id.Key())
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	defer func() {
		c.closed.Store(true)
		c.teardown()
		close(c.notifCh)
	}()

	for {
		payload, err := ReadFrame(c.reader)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("read loop ended: %v", err)
			}
			return
		}
		c.dispatch(payload)
	}
}

// dispatch classifies one inbound frame. Messages carrying a method
// and an id are server-to-client requests, a method alone is a
// notification, an id alone is a response. Anything else is logged
// and dropped.
func (c *Conn) dispatch(payload []byte) {
	hasMethod := gjson.GetBytes(payload, "method").Exists()
	hasID := gjson.GetBytes(payload, "id").Exists()

	switch {
	case hasMethod && hasID:
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			c.logger.Warn("dropping malformed server request: %v", err)
			return
		}
		go c.handleServerRequest(&req)

	case hasMethod:
		var notif Notification
		if err := json.Unmarshal(payload, &notif); err != nil {
			c.logger.Warn("dropping malformed notification: %v", err)
			return
		}
		select {
		case c.notifCh <- &notif:
		case <-c.done:
		}

	case hasID:
		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			c.logger.Warn("dropping malformed response: %v", err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID.Key()]
		if ok {
			delete(c.pending, resp.ID.Key())
		}
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("response for unknown request id %s", resp.ID)
			return
		}
		ch <- &resp

	default:
		c.logger.Warn("dropping frame that is neither request, response, nor notification")
	}
}

func (c *Conn) handleServerRequest(req *Request) {
	if c.onRequest == nil {
		c.respond(req.ID, nil, &RPCError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not supported", req.Method),
		})
		return
	}
	result, rpcErr := c.onRequest(req)
	c.respond(req.ID, result, rpcErr)
}

func (c *Conn) respond(id ID, result any, rpcErr *RPCError) {
	resp := &Response{JSONRPC: Version, ID: id, Error: rpcErr}
	if rpcErr == nil {
		raw, err := marshalParams(result)
		if err != nil {
			c.logger.Error("marshal server request result: %v", err)
			return
		}
		resp.Result = raw
	}
	if err := c.writeMessage(resp); err != nil {
		c.logger.Warn("reply to server request: %v", err)
	}
}

func (c *Conn) notifyLoop() {
	for notif := range c.notifCh {
		if c.onNotify != nil {
			c.onNotify(notif)
		}
	}
}

func (c *Conn) teardown() {
	c.downOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for key, ch := range c.pending {
			delete(c.pending, key)
			close(ch)
		}
		c.mu.Unlock()
	})
}
