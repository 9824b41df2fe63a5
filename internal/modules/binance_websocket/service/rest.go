package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"signal_engine/internal/models"
	"signal_engine/pkg/logger"
)

const maxHistoryLimit = 1500

// HistorySink принимает историю свечей (кэш).
type HistorySink interface {
	PutHistory(symbol, interval string, candles []models.Candle) int
}

// FetchHistory: последние limit свечей по REST.
func (c *Client) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.ToLower(strings.TrimSpace(interval))
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol and interval are required")
	}

	kls, err := c.rest.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, models.Candle{
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Timestamp: kl.OpenTime,
		})
	}
	return out, nil
}

// Warmup заполняет буферы историей до старта потока. Ошибки по отдельным парам не фатальны.
func (c *Client) Warmup(ctx context.Context, sink HistorySink) error {
	type job struct{ symbol, tf string }

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		loaded   int
		// ограничитель параллелизма, чтобы не словить rate limit
		sem = make(chan struct{}, 4)
	)

	for _, sym := range c.symbols {
		for _, tf := range c.timeframes {
			j := job{sym, tf}
			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()

				candles, err := c.FetchHistory(ctx, j.symbol, j.tf, c.capacity)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logger.Warn("[WARMUP] %s %s: %v", j.symbol, j.tf, err)
					if firstErr == nil {
						firstErr = fmt.Errorf("warmup %s %s: %w", j.symbol, j.tf, err)
					}
					return
				}
				loaded += sink.PutHistory(j.symbol, j.tf, candles)
			}()
		}
	}
	wg.Wait()

	logger.Info("[WARMUP] done: %d candles, symbols=%d timeframes=%d", loaded, len(c.symbols), len(c.timeframes))
	return firstErr
}

// FundingRate: последний funding rate по premium index.
func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("invalid symbol")
	}
	res, err := c.rest.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range res {
		if entry != nil && strings.EqualFold(entry.Symbol, symbol) {
			return parseFloat(entry.LastFundingRate), nil
		}
	}
	return 0, fmt.Errorf("funding rate not available for %s", symbol)
}
