// Package signal implements the client side of the meeting signaling
// protocol: one long-lived websocket carrying {event,data} envelopes,
// with bounded auto-reconnect.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("channel closed")
)

// Conn is the subset of *websocket.Conn the pumps need. Tests swap in
// an in-memory pipe.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetWriteDeadline(time.Time) error
	SetReadLimit(int64)
	Close() error
}

// Dialer opens one physical connection attempt.
type Dialer func(ctx context.Context) (Conn, error)

type Options struct {
	URL      string
	Identity domain.Identity

	ReadLimit         int64
	PingPeriod        time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	// Dial overrides the websocket dialer, used by tests.
	Dial Dialer
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel is a core.SignalChannel over gorilla/websocket. Exactly one
// instance per session; it is injected, never global.
type Channel struct {
	opts Options
	dial Dialer

	mu        sync.RWMutex
	conn      Conn
	send      chan []byte
	connected bool
	terminal  bool
	closed    bool
	cancel    context.CancelFunc

	handlers map[string]map[string]core.Handler
	status   map[string]func(bool)
}

var _ core.SignalChannel = (*Channel)(nil)

func NewChannel(opts Options) *Channel {
	c := &Channel{
		opts:     opts,
		handlers: make(map[string]map[string]core.Handler),
		status:   make(map[string]func(bool)),
	}
	c.dial = opts.Dial
	if c.dial == nil {
		c.dial = c.dialWebsocket
	}
	return c
}

func (c *Channel) dialWebsocket(ctx context.Context) (Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("name", c.opts.Identity.Name)
	if c.opts.Identity.Email != "" {
		q.Set("email", c.opts.Identity.Email)
	}
	u.RawQuery = q.Encode()

	hdr := http.Header{}
	if c.opts.Identity.Token != "" {
		hdr.Set("Authorization", "Bearer "+c.opts.Identity.Token)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Open dials the channel and starts the pumps. Reconnection after a
// drop is automatic with a growing delay; once the retry budget is
// exhausted the channel goes terminal and a fresh Open is required.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.terminal = false
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	go c.supervise(ctx, conn)
	return nil
}

func (c *Channel) connect(ctx context.Context) (Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}

	c.mu.Lock()
	c.conn = conn
	c.send = make(chan []byte, 32)
	c.connected = true
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("url", c.opts.URL).Msg("channel connected")
	c.notifyStatus(true)
	return conn, nil
}

// supervise runs one connection at a time: pumps until the read side
// dies, then retries with increasing delay until the budget runs out.
func (c *Channel) supervise(ctx context.Context, conn Conn) {
	for {
		c.runPumps(ctx, conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		c.notifyStatus(false)

		if closed {
			return
		}
		if ctx.Err() != nil {
			// The parent context died out from under us. Treat it like
			// an exhausted budget so callers see the channel is done.
			c.mu.Lock()
			c.terminal = true
			c.mu.Unlock()
			log.Warn().Str("module", "signal").Msg("supervise context cancelled")
			return
		}

		next, err := c.reconnect(ctx)
		if err != nil {
			c.mu.Lock()
			c.terminal = true
			c.mu.Unlock()
			log.Error().Err(err).Str("module", "signal").Msg("reconnect budget exhausted")
			return
		}
		conn = next
	}
}

func (c *Channel) reconnect(ctx context.Context) (Conn, error) {
	delay := c.opts.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := c.opts.ReconnectDelayMax
	if maxDelay < delay {
		maxDelay = delay
	}
	attempts := c.opts.ReconnectAttempts
	if attempts <= 0 {
		attempts = 5
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		conn, err := c.connect(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "signal").Int("attempt", i+1).Msg("reconnect failed")

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	if lastErr == nil {
		lastErr = ErrNotConnected
	}
	return nil, lastErr
}

func (c *Channel) runPumps(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.RLock()
	send := c.send
	c.mu.RUnlock()

	go c.writePump(ctx, conn, send)
	c.readPump(ctx, conn)
}

func (c *Channel) writePump(ctx context.Context, conn Conn, send <-chan []byte) {
	ping := c.opts.PingPeriod
	if ping <= 0 {
		ping = 54 * time.Second
	}
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context, conn Conn) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				}
				return
			}
			c.dispatch(data)
		}
	}
}

func (c *Channel) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad envelope")
		return
	}

	c.mu.RLock()
	keyed := c.handlers[env.Event]
	hs := make([]core.Handler, 0, len(keyed))
	for _, h := range keyed {
		hs = append(hs, h)
	}
	c.mu.RUnlock()

	if len(hs) == 0 {
		log.Debug().Str("module", "signal").Str("event", env.Event).Msg("no subscriber")
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}

// Emit marshals one envelope and hands it to the write pump. It never
// queues across disconnects: while down it fails fast instead.
func (c *Channel) Emit(event string, payload any) error {
	c.mu.RLock()
	connected := c.connected
	send := c.send
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Subscribe is idempotent per (event, key): re-subscribing replaces the
// handler instead of duplicating delivery.
func (c *Channel) Subscribe(event, key string, h core.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keyed, ok := c.handlers[event]
	if !ok {
		keyed = make(map[string]core.Handler)
		c.handlers[event] = keyed
	}
	keyed[key] = h
}

func (c *Channel) Unsubscribe(event, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if keyed, ok := c.handlers[event]; ok {
		delete(keyed, key)
		if len(keyed) == 0 {
			delete(c.handlers, event)
		}
	}
}

func (c *Channel) OnStatus(key string, fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		delete(c.status, key)
		return
	}
	c.status[key] = fn
}

func (c *Channel) notifyStatus(connected bool) {
	c.mu.RLock()
	fns := make([]func(bool), 0, len(c.status))
	for _, fn := range c.status {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(connected)
	}
}

func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Terminal reports whether the retry budget has been exhausted.
func (c *Channel) Terminal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.terminal
}

func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "signal").Msg("channel closed")
}
