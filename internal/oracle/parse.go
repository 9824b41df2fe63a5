package oracle

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"signal_engine/internal/models"

	"github.com/tidwall/gjson"
)

const codeFence = "```"

// Parse переводит свободный текст ответа в Decision. Понимает JSON (в том числе в ```-блоке)
// и markdown-поля вида **Trade:** LONG. Непонятный ответ даёт ErrMalformed и NoTrade(defaultNext).
func Parse(raw string, defaultNext time.Duration) (models.Decision, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.NoTradeDecision(defaultNext), ErrEmptyResponse
	}
	if obj, ok := ExtractJSON(raw); ok {
		if d, ok := parseJSON(obj, defaultNext); ok {
			return d, nil
		}
	}
	if d, ok := parseMarkdown(raw, defaultNext); ok {
		return d, nil
	}
	return models.NoTradeDecision(defaultNext), ErrMalformed
}

func parseJSON(obj string, defaultNext time.Duration) (models.Decision, bool) {
	if !gjson.Valid(obj) {
		return models.Decision{}, false
	}
	res := gjson.Parse(obj)
	trade := first(res, "trade", "direction", "decision")
	if !trade.Exists() {
		return models.Decision{}, false
	}

	next := nextCheck(first(res, "next_check_minutes", "next_check_in_minutes", "next_check"), defaultNext)
	f := fields{
		trade:      trade.String(),
		confidence: first(res, "confidence").String(),
		timeframe:  first(res, "timeframe").String(),
		entry:      first(res, "entry").String(),
		sl:         first(res, "stop_loss", "sl", "stop").String(),
		tp:         first(res, "take_profit", "tp", "target").String(),
		thesis:     first(res, "thesis", "rationale", "reason").String(),
	}
	return f.decision(next)
}

func first(res gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

var mdField = regexp.MustCompile(`(?im)^\s*[-*]*\s*\*\*\s*([a-z ]+?)\s*:\s*\*\*\s*(.+?)\s*$`)

func parseMarkdown(raw string, defaultNext time.Duration) (models.Decision, bool) {
	vals := make(map[string]string)
	for _, m := range mdField.FindAllStringSubmatch(raw, -1) {
		key := strings.ToLower(strings.TrimSpace(m[1]))
		if _, dup := vals[key]; !dup {
			vals[key] = strings.TrimSpace(m[2])
		}
	}
	if _, ok := vals["trade"]; !ok {
		return models.Decision{}, false
	}

	next := defaultNext
	if m, ok := price(vals["next check in minutes"]); ok && m > 0 {
		next = time.Duration(m * float64(time.Minute))
	}
	f := fields{
		trade:      vals["trade"],
		confidence: vals["confidence"],
		timeframe:  vals["timeframe"],
		entry:      vals["entry"],
		sl:         vals["stop loss"],
		tp:         vals["take profit"],
		thesis:     vals["thesis"],
	}
	return f.decision(next)
}

type fields struct {
	trade, confidence, timeframe, entry, sl, tp, thesis string
}

func (f fields) decision(next time.Duration) (models.Decision, bool) {
	var dir models.Direction
	switch strings.ToUpper(strings.Trim(strings.TrimSpace(f.trade), "*_`\"'")) {
	case "NONE", "NO TRADE", "NO_TRADE", "WAIT", "":
		return models.NoTradeDecision(next), true
	case "LONG", "BUY":
		dir = models.DirectionLong
	case "SHORT", "SELL":
		dir = models.DirectionShort
	default:
		return models.Decision{}, false
	}

	entry, ok1 := price(f.entry)
	sl, ok2 := price(f.sl)
	tp, ok3 := price(f.tp)
	if !ok1 || !ok2 || !ok3 {
		return models.Decision{}, false
	}
	conf, _ := price(f.confidence)
	tf := strings.TrimSpace(f.timeframe)
	if tf == "" {
		tf = "multi"
	}
	return models.TradeDecision(models.TradePlan{
		Direction:  dir,
		Confidence: clampConfidence(int(conf)),
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Timeframe:  tf,
		Thesis:     strings.TrimSpace(f.thesis),
	}, next), true
}

var numberRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// price достаёт первое число: "$64,250.5" -> 64250.5.
func price(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func nextCheck(v gjson.Result, def time.Duration) time.Duration {
	if !v.Exists() {
		return def
	}
	var mins float64
	if v.Type == gjson.Number {
		mins = v.Float()
	} else if f, ok := price(v.String()); ok {
		mins = f
	}
	if mins <= 0 {
		return def
	}
	return time.Duration(mins * float64(time.Minute))
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// ExtractJSON достаёт JSON-объект из ответа: ```-блок или первый сбалансированный {...}.
func ExtractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fromFence(raw); ok {
		if obj, ok := balancedObject(block); ok {
			return obj, true
		}
	}
	return balancedObject(raw)
}

func fromFence(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// первая строка может быть языком блока: ```json
	if idx := strings.Index(block, "\n"); idx != -1 {
		if head := strings.TrimSpace(block[:idx]); head != "" && !strings.ContainsAny(head, "{[") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	return block, block != ""
}

func balancedObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
