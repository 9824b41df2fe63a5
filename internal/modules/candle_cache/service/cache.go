package service

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"signal_engine/internal/models"
	"signal_engine/pkg/metrics"
)

const (
	defaultShardCount = 32
	DefaultCapacity   = 100
)

// Cache хранит последние N свечей на пару (instrument, timeframe).
// Каждый ключ пишется под мьютексом своего шарда, читатели получают копию.
type Cache struct {
	capacity int
	shards   []shard
	metrics  *metrics.Recorder

	ingested atomic.Int64
	replaced atomic.Int64
	dropped  atomic.Int64
}

type shard struct {
	mu   sync.RWMutex
	data map[string][]models.Candle
}

// Stats: счётчики кэша.
type Stats struct {
	Ingested int64 `json:"ingested"`
	Replaced int64 `json:"replaced"`
	Dropped  int64 `json:"dropped"`
	Keys     int   `json:"keys"`
}

func NewCache(capacity int, rec *metrics.Recorder) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	c := &Cache{
		capacity: capacity,
		shards:   make([]shard, defaultShardCount),
		metrics:  rec,
	}
	for i := range c.shards {
		c.shards[i] = shard{data: make(map[string][]models.Candle)}
	}
	return c
}

func (c *Cache) Capacity() int { return c.capacity }

func (c *Cache) shardFor(key string) *shard {
	return &c.shards[hashKey(key)%uint32(len(c.shards))]
}

// Put заменяет последнюю свечу с тем же timestamp или добавляет новую.
// Свечи старше последней отбрасываются, порядок в буфере строго возрастающий.
func (c *Cache) Put(symbol, interval string, candle models.Candle) bool {
	if symbol == "" || interval == "" {
		c.drop("empty_key")
		return false
	}
	k := models.Key(symbol, interval)
	sh := c.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur := sh.data[k]
	n := len(cur)
	switch {
	case n > 0 && cur[n-1].Timestamp == candle.Timestamp:
		cur[n-1] = candle
		c.replaced.Add(1)
	case n > 0 && candle.Timestamp < cur[n-1].Timestamp:
		c.drop("out_of_order")
		return false
	default:
		cur = append(cur, candle)
		if len(cur) > c.capacity {
			// старые вытесняются FIFO; append перевыделит массив, когда упрётся в cap
			cur = cur[len(cur)-c.capacity:]
		}
	}
	sh.data[k] = cur

	c.ingested.Add(1)
	c.metrics.CandleIngested(interval)
	return true
}

// PutHistory вливает пачку свечей (прогрев по REST) с той же семантикой, что и Put.
func (c *Cache) PutHistory(symbol, interval string, candles []models.Candle) int {
	applied := 0
	for _, candle := range candles {
		if c.Put(symbol, interval, candle) {
			applied++
		}
	}
	return applied
}

// Window возвращает снимок буфера. Может быть пустым.
func (c *Cache) Window(symbol, interval string) []models.Candle {
	k := models.Key(symbol, interval)
	sh := c.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	cur := sh.data[k]
	out := make([]models.Candle, len(cur))
	copy(out, cur)
	return out
}

// Since: свечи с Timestamp >= fromMs, в хронологическом порядке.
func (c *Cache) Since(symbol, interval string, fromMs int64) []models.Candle {
	k := models.Key(symbol, interval)
	sh := c.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	cur := sh.data[k]
	i := sort.Search(len(cur), func(i int) bool { return cur[i].Timestamp >= fromMs })
	out := make([]models.Candle, len(cur)-i)
	copy(out, cur[i:])
	return out
}

func (c *Cache) Newest(symbol, interval string) (models.Candle, bool) {
	k := models.Key(symbol, interval)
	sh := c.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	cur := sh.data[k]
	if len(cur) == 0 {
		return models.Candle{}, false
	}
	return cur[len(cur)-1], true
}

// NewestAge: возраст самой свежей свечи относительно now. ok=false если буфер пуст.
func (c *Cache) NewestAge(symbol, interval string, now time.Time) (time.Duration, bool) {
	candle, ok := c.Newest(symbol, interval)
	if !ok {
		return 0, false
	}
	return now.Sub(candle.Time()), true
}

// Ages: возраст свежей свечи по всем ключам.
func (c *Cache) Ages(now time.Time) map[string]time.Duration {
	out := make(map[string]time.Duration)
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		for k, cur := range sh.data {
			if len(cur) > 0 {
				out[k] = now.Sub(cur[len(cur)-1].Time())
			}
		}
		sh.mu.RUnlock()
	}
	for k, age := range out {
		c.metrics.CandleAge(k, age.Seconds())
	}
	return out
}

// Stale: ключи, где свежей свече больше factor интервалов. Отсортированы.
func (c *Cache) Stale(now time.Time, factor int) []string {
	var out []string
	for key, age := range c.Ages(now) {
		i := strings.LastIndexByte(key, '@')
		if i < 0 {
			continue
		}
		if d := models.IntervalDuration(key[i+1:]); d > 0 && age > time.Duration(factor)*d {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Cache) Keys() []string {
	var out []string
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		for k := range sh.data {
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (c *Cache) Stats() Stats {
	return Stats{
		Ingested: c.ingested.Load(),
		Replaced: c.replaced.Load(),
		Dropped:  c.dropped.Load(),
		Keys:     len(c.Keys()),
	}
}

func (c *Cache) drop(reason string) {
	c.dropped.Add(1)
	c.metrics.FrameDropped(reason)
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
