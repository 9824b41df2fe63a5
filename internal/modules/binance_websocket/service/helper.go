package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// combinedURL: wss://.../stream?streams=btcusdt@kline_5m/ethusdt@kline_5m/...
func combinedURL(base string, symbols, timeframes []string) (string, error) {
	names := streamNames(symbols, timeframes)
	if len(names) == 0 {
		return "", errors.New("no valid symbols or timeframes for subscription")
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "wss://fstream.binance.com/stream"
	}
	if !strings.HasSuffix(base, "/stream") {
		base += "/stream"
	}
	return base + "?streams=" + strings.Join(names, "/"), nil
}

func streamNames(symbols, timeframes []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, sym := range symbols {
		s := strings.ToLower(strings.TrimSpace(sym))
		if s == "" {
			continue
		}
		for _, tf := range timeframes {
			tf = strings.ToLower(strings.TrimSpace(tf))
			if tf == "" {
				continue
			}
			name := s + "@kline_" + tf
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
