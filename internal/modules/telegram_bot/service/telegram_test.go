package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"signal_engine/internal/models"
	cache "signal_engine/internal/modules/candle_cache/service"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/internal/store/memory"
	"signal_engine/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbot.MessageConfig
	updates chan tgbot.Update
}

func (f *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbot.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbot.Message{}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel { return f.updates }
func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) messages() []tgbot.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbot.MessageConfig(nil), f.sent...)
}

func command(chatID int64, cmd string) tgbot.Update {
	return tgbot.Update{Message: &tgbot.Message{
		Chat:     &tgbot.Chat{ID: chatID},
		Text:     "/" + cmd,
		Entities: []tgbot.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}},
	}}
}

func testTelegram(t *testing.T) (*Telegram, *fakeBot, *memory.Store, *cache.Cache) {
	t.Helper()
	logger.InitNop()
	bot := &fakeBot{updates: make(chan tgbot.Update, 4)}
	st := memory.New()
	c := cache.NewCache(10, nil)
	return newTelegram(bot, 42, []string{"BTCUSDT"}, health.NewState(), c, st), bot, st, c
}

func TestSendGoesToConfiguredChat(t *testing.T) {
	tg, bot, _, _ := testTelegram(t)
	require.NoError(t, tg.Send(context.Background(), "BTCUSDT | LONG | 1h | Entry: 100 | Conf: 80"))

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ChatID)
	assert.Equal(t, "BTCUSDT | LONG | 1h | Entry: 100 | Conf: 80", msgs[0].Text)

	tg.chatID = 0
	assert.Error(t, tg.Send(context.Background(), "x"))
}

func TestReplyStats(t *testing.T) {
	tg, _, st, _ := testTelegram(t)
	ctx := context.Background()
	now := time.Now()

	assert.Equal(t, "📭 Закрытых сигналов пока нет", tg.reply(ctx, "stats", now))

	_, err := st.InsertSignal(ctx, &models.Signal{ID: "a", Symbol: "BTCUSDT", Direction: models.DirectionLong, Entry: 100, StopLoss: 99, TakeProfit: 102, Timeframe: "1h", CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, st.CloseSignal(ctx, "a", models.Closure{Outcome: models.OutcomeWin, Reason: models.ClosedTP, HitPrice: 102}))

	assert.Contains(t, tg.reply(ctx, "stats", now), "Winrate: 100.00%")
	assert.Empty(t, tg.reply(ctx, "unknown", now))
}

func TestReplyStatusListsStaleKeys(t *testing.T) {
	tg, _, _, c := testTelegram(t)
	now := time.Now()
	c.Put("BTCUSDT", "5m", models.Candle{Close: 1, Timestamp: now.Add(-time.Hour).UnixMilli()})

	out := tg.reply(context.Background(), "status", now)
	assert.Contains(t, out, "Отстают: BTCUSDT@5m")
	assert.Contains(t, out, "Инструменты: BTCUSDT")
}

func TestReplySignals(t *testing.T) {
	tg, _, st, _ := testTelegram(t)
	ctx := context.Background()
	now := time.Now()

	assert.Equal(t, "📭 Открытых сигналов нет", tg.reply(ctx, "signals", now))

	_, err := st.InsertSignal(ctx, &models.Signal{ID: "a", Symbol: "ETHUSDT", Direction: models.DirectionShort, Entry: 2000.5, StopLoss: 2020, TakeProfit: 1950, Timeframe: "4h", CreatedAt: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.Contains(t, tg.reply(ctx, "signals", now), "- ETHUSDT SHORT 4h entry=2000.5 sl=2020 tp=1950 (1h30m0s)")
}

func TestCommandLoop(t *testing.T) {
	tg, bot, _, _ := testTelegram(t)
	tg.Start()
	bot.updates <- command(7, "help")

	assert.Eventually(t, func() bool { return len(bot.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(7), bot.messages()[0].ChatID)
	assert.Equal(t, helpText, bot.messages()[0].Text)
	tg.Stop()
}
