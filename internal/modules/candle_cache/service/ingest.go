package service

import (
	"strconv"
	"strings"

	"signal_engine/internal/models"

	"github.com/tidwall/gjson"
)

// ParseKline разбирает kline-кадр Binance: combined {"stream":..,"data":{..}} или голый event.
// Обязательны s, k.i, k.t, k.o, k.h, k.l, k.c, k.v.
func ParseKline(raw []byte) (models.CandleUpdate, string, bool) {
	if !gjson.ValidBytes(raw) {
		return models.CandleUpdate{}, "invalid_json", false
	}
	root := gjson.ParseBytes(raw)
	if data := root.Get("data"); data.Exists() {
		root = data
	}
	k := root.Get("k")
	if !k.Exists() {
		return models.CandleUpdate{}, "not_kline", false
	}

	symbol := root.Get("s").String()
	if symbol == "" {
		symbol = k.Get("s").String()
	}
	interval := k.Get("i").String()
	if symbol == "" || interval == "" {
		return models.CandleUpdate{}, "missing_key", false
	}

	ts := k.Get("t")
	if !ts.Exists() || ts.Type != gjson.Number {
		return models.CandleUpdate{}, "missing_timestamp", false
	}

	var vals [5]float64
	for i, field := range []string{"o", "h", "l", "c", "v"} {
		f, ok := number(k.Get(field))
		if !ok {
			return models.CandleUpdate{}, "missing_" + field, false
		}
		vals[i] = f
	}

	return models.CandleUpdate{
		Symbol:   strings.ToUpper(symbol),
		Interval: strings.ToLower(interval),
		Candle: models.Candle{
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			Timestamp: ts.Int(),
		},
		Closed: k.Get("x").Bool(),
	}, "", true
}

// Binance отдаёт цены строками, но принимаем и числа.
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Ingest разбирает сырой кадр и кладёт свечу в буфер. Битые кадры считаются и отбрасываются.
func (c *Cache) Ingest(raw []byte) bool {
	u, reason, ok := ParseKline(raw)
	if !ok {
		c.drop(reason)
		return false
	}
	return c.Put(u.Symbol, u.Interval, u.Candle)
}
