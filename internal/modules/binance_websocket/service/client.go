package service

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"signal_engine/internal/modules/config"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/pkg/metrics"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
)

// Client: поток свечей Binance USDT-M (websocket) + REST для прогрева и funding.
type Client struct {
	wsURL      string
	symbols    []string
	timeframes []string
	capacity   int

	wsDialer *websocket.Dialer
	rest     *futures.Client
	state    *health.State
	metrics  *metrics.Recorder

	pingEvery   time.Duration
	readTimeout time.Duration
	minBackoff  time.Duration
	maxBackoff  time.Duration

	statsMu sync.Mutex
	stats   Stats
}

// Stats: состояние подключения.
type Stats struct {
	Connects   int64     `json:"connects"`
	Reconnects int64     `json:"reconnects"`
	LastError  string    `json:"last_error,omitempty"`
	LastErrAt  time.Time `json:"last_error_at,omitempty"`
}

func NewClient(cfg *config.Config, state *health.State, rec *metrics.Recorder) *Client {
	rest := futures.NewClient("", "")
	if u := strings.TrimSpace(cfg.Binance.RESTURL); u != "" {
		rest.BaseURL = u
	}
	rest.HTTPClient = &http.Client{Timeout: 10 * time.Second}

	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Client{
		wsURL:       cfg.Binance.WSURL,
		symbols:     cfg.Binance.Symbols,
		timeframes:  cfg.StreamTimeframes(),
		capacity:    cfg.Cache.Capacity,
		wsDialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		rest:        rest,
		state:       state,
		metrics:     rec,
		pingEvery:   20 * time.Second,
		readTimeout: 90 * time.Second,
		minBackoff:  time.Second,
		maxBackoff:  30 * time.Second,
	}
}

func (c *Client) Symbols() []string    { return c.symbols }
func (c *Client) Timeframes() []string { return c.timeframes }

func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Client) recordConnect() {
	c.statsMu.Lock()
	c.stats.Connects++
	c.statsMu.Unlock()
	if c.state != nil {
		c.state.SetWSConnected(true)
	}
}

func (c *Client) recordDisconnect(err error) {
	c.statsMu.Lock()
	c.stats.Reconnects++
	if err != nil {
		c.stats.LastError = err.Error()
		c.stats.LastErrAt = time.Now()
	}
	c.statsMu.Unlock()
	if c.state != nil {
		c.state.SetWSConnected(false)
	}
	c.metrics.Reconnect()
}
