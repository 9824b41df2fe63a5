package service

import (
	"context"
	"time"

	"signal_engine/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	reply := t.reply(ctx, msg.Command(), time.Now())
	if reply == "" {
		return
	}
	if err := t.sendTo(ctx, msg.Chat.ID, reply); err != nil {
		logger.Error("[TG] reply /%s: %v", msg.Command(), err)
	}
}

// reply: ответ на команду. Пустая строка = команда не наша.
func (t *Telegram) reply(ctx context.Context, command string, now time.Time) string {
	switch command {
	case "start", "help":
		return helpText
	case "status":
		return formatStatus(t.state.Snapshot(), t.symbols, t.cache.Stats(), t.cache.Stale(now, staleFactor))
	case "stats":
		st, err := t.store.Stats(ctx)
		if err != nil {
			logger.Error("[TG] stats: %v", err)
			return "❗️ Статистика недоступна"
		}
		return formatStats(st)
	case "signals":
		open, err := t.store.ListOpenSignals(ctx)
		if err != nil {
			logger.Error("[TG] open signals: %v", err)
			return "❗️ Список сигналов недоступен"
		}
		return formatOpen(open, now)
	}
	return ""
}
