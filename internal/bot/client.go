package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamglass/internal/action"
	"streamglass/internal/observability/metrics"
)

// Config controls the bot socket client.
type Config struct {
	// URL is the bot's websocket endpoint, e.g. ws://127.0.0.1:7472/events.
	URL string
	// Token, when set, is sent as a bearer Authorization header.
	Token string
	// Locale feeds the donation amount formatter.
	Locale string

	Logger  *slog.Logger
	Metrics *metrics.Recorder

	HandshakeTimeout time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
}

// Client dials the automation bot, feeds normalized actions into the store
// loop, and exposes fire-and-forget variable writes for the mirror. The
// alert lifecycle never depends on this link staying up: when the socket
// drops, the overlay keeps timing and dismissing whatever it already has.
type Client struct {
	cfg     Config
	adapter *Adapter
	send    func(action.Action) error
	logger  *slog.Logger
	rec     *metrics.Recorder

	mu   sync.Mutex
	conn *websocket.Conn
}

// New builds a client delivering actions through send (normally Store.Send).
func New(cfg Config, send func(action.Action) error) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("bot: url is required")
	}
	if send == nil {
		return nil, fmt.Errorf("bot: send func is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		adapter: NewAdapter(cfg.Locale),
		send:    send,
		logger:  logger.With("component", "bot"),
		rec:     rec,
	}, nil
}

// Run dials and reads until the context ends, reconnecting with capped
// exponential backoff. Connection transitions are reported to the store.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	attempts := 0
	for {
		attempts++
		_ = c.send(action.NewConnectionStatus("connecting", attempts))
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("bot dial failed", "attempt", attempts, "error", err)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}
		attempts = 0
		backoff = c.cfg.MinBackoff
		c.setConn(conn)
		c.rec.SetBotConnected(true)
		_ = c.send(action.NewConnectionOpened())
		c.logger.Info("bot connected", "url", c.cfg.URL)

		readErr := c.readLoop(ctx, conn)
		c.setConn(nil)
		c.rec.SetBotConnected(false)
		_ = conn.Close()
		reason := ""
		if readErr != nil {
			reason = readErr.Error()
		}
		_ = c.send(action.NewConnectionClosed(reason))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("bot disconnected", "error", readErr)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// A canceled context must unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		act, ok, err := c.adapter.Normalize(data)
		if err != nil {
			c.logger.Warn("bot frame rejected", "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := c.send(act); err != nil {
			c.logger.Warn("action dropped", "action", act.Type, "error", err)
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

type setVariableRequest struct {
	Request string `json:"request"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// Set mirrors a named variable to the bot's global variable store. The write
// is fire-and-forget: there is no acknowledgement protocol on this channel.
// Implements mirror.VariableStore.
func (c *Client) Set(_ context.Context, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("bot: not connected")
	}
	return c.conn.WriteJSON(setVariableRequest{Request: "SetGlobalVariable", Name: name, Value: value})
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
