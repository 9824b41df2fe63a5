package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signal_engine/internal/models"
	"signal_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

const systemPrompt = `You are a crypto market analyst. Given a JSON market summary (candles per timeframe,
detected patterns, confluence), answer ONLY with a JSON object:
{"trade":"LONG|SHORT|NONE","confidence":0-100,"timeframe":"...","entry":number,"stop_loss":number,
"take_profit":number,"next_check_minutes":number,"thesis":"one sentence"}`

// OpenAI: оракул поверх chat/completions (OpenAI-совместимые API).
type OpenAI struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int
	DefaultNext time.Duration
	// сколько последних свечей на таймфрейм уходит в промпт
	CandlesPerTF int

	http  *http.Client
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration, maxRetries int, defaultNext time.Duration) *OpenAI {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &OpenAI{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		MaxRetries:   maxRetries,
		DefaultNext:  defaultNext,
		CandlesPerTF: 30,
		http:         &http.Client{Timeout: timeout},
		sleep:        sleepCtx,
	}
}

func (o *OpenAI) Decide(ctx context.Context, req Request) (models.Decision, error) {
	prompt, err := o.userPrompt(req)
	if err != nil {
		return models.NoTradeDecision(o.DefaultNext), err
	}
	text, err := o.complete(ctx, prompt)
	if err != nil {
		return models.NoTradeDecision(o.DefaultNext), err
	}
	return Parse(text, o.DefaultNext)
}

type promptSummary struct {
	Symbol      string                     `json:"symbol"`
	Time        time.Time                  `json:"time"`
	FundingRate *float64                   `json:"funding_rate,omitempty"`
	Confluence  models.ConfluenceResult    `json:"confluence"`
	PerTF       []models.ConfluenceResult  `json:"confluence_per_timeframe"`
	Patterns    []models.PatternSignal     `json:"patterns"`
	Candles     map[string][]models.Candle `json:"candles"`
}

func (o *OpenAI) userPrompt(req Request) (string, error) {
	candles := make(map[string][]models.Candle, len(req.Windows))
	for tf, w := range req.Windows {
		if n := o.CandlesPerTF; n > 0 && len(w) > n {
			w = w[len(w)-n:]
		}
		candles[tf] = w
	}
	b, err := sonic.Marshal(promptSummary{
		Symbol:      req.Symbol,
		Time:        req.Now,
		FundingRate: req.FundingRate,
		Confluence:  req.Confluence,
		PerTF:       req.PerTimeframe,
		Patterns:    req.Patterns,
		Candles:     candles,
	})
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return "Market summary:\n" + string(b), nil
}

func (o *OpenAI) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// complete: POST /chat/completions с ограниченным ретраем на 429/5xx.
func (o *OpenAI) complete(ctx context.Context, userPrompt string) (string, error) {
	body, err := sonic.Marshal(map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.2,
	})
	if err != nil {
		return "", err
	}

	url := o.endpoint()
	var lastErr error
	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if o.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+o.APIKey)
		}

		resp, err := o.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("oracle request: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("oracle read: %w", err)
		}

		if resp.StatusCode/100 == 2 {
			content := gjson.GetBytes(data, "choices.0.message.content")
			if !content.Exists() || strings.TrimSpace(content.String()) == "" {
				return "", ErrEmptyResponse
			}
			return content.String(), nil
		}

		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("oracle status=%d: %s", resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt == o.MaxRetries {
			break
		}

		wait := retryAfter(resp.Header.Get("Retry-After"), attempt)
		logger.Warn("[ORACLE] %v, retry in %s", lastErr, wait)
		if err := o.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("%v, retry aborted: %w", lastErr, err)
		}
	}
	return "", lastErr
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// sleepCtx ждёт d или отмену ctx.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfter(header string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	wait := (800 * time.Millisecond) << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}
