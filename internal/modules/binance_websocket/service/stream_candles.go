package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal_engine/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream держит одно combined-подключение на все пары (symbol, timeframe) и отдаёт
// сырые кадры в sink. При обрыве переподключение с backoff и полной переподпиской.
// Возвращается только по отмене ctx.
func (c *Client) Stream(ctx context.Context, sink func(raw []byte) bool) error {
	url, err := combinedURL(c.wsURL, c.symbols, c.timeframes)
	if err != nil {
		return err
	}

	delay := c.minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		logger.Info("[WS] connect %d symbols x %d timeframes", len(c.symbols), len(c.timeframes))
		connected, err := c.session(ctx, url, sink)
		if ctx.Err() != nil {
			if c.state != nil {
				c.state.SetWSConnected(false)
			}
			return nil
		}
		c.recordDisconnect(err)
		logger.Warn("[WS] disconnected: %v", err)

		if connected {
			// сессия была живой, начинаем backoff заново
			delay = c.minBackoff
		}
		if !sleepWithContext(ctx, delay) {
			return nil
		}
		delay = nextDelay(delay, c.maxBackoff)
	}
}

// session обслуживает одно подключение: dial, keepalive, read-loop. connected=true если dial прошёл.
func (c *Client) session(ctx context.Context, url string, sink func([]byte) bool) (connected bool, err error) {
	conn, _, err := c.wsDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	c.recordConnect()
	logger.Info("[WS] connected")

	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	done := make(chan struct{})
	defer close(done)

	// закрываем сокет при отмене, чтобы разблокировать ReadMessage
	go func() {
		t := time.NewTicker(c.pingEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					logger.Warn("[WS] ping error: %v", err)
				}
			}
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("closed by server")
			}
			return true, fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		if sink(msg) && c.state != nil {
			c.state.TouchTick(time.Now())
		}
	}
}
