package service

import (
	"context"
	"fmt"
	"time"

	cache "signal_engine/internal/modules/candle_cache/service"
	health "signal_engine/internal/modules/health/service"
	"signal_engine/internal/store"
	"signal_engine/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI: часть *tgbot.BotAPI, которой пользуется сервис.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram: приёмник алертов в один чат + команды /status /stats /signals.
type Telegram struct {
	bot     botAPI
	chatID  int64
	symbols []string

	state *health.State
	cache *cache.Cache
	store store.Store

	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewTelegram(token string, chatID int64, symbols []string, state *health.State, c *cache.Cache, st store.Store) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, symbols, state, c, st), nil
}

func newTelegram(b botAPI, chatID int64, symbols []string, state *health.State, c *cache.Cache, st store.Store) *Telegram {
	return &Telegram{
		bot:     b,
		chatID:  chatID,
		symbols: symbols,
		state:   state,
		cache:   c,
		store:   st,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Send: алерт в настроенный чат.
func (t *Telegram) Send(ctx context.Context, msg string) error {
	if t.chatID == 0 {
		return fmt.Errorf("telegram chat_id is not set")
	}
	return t.sendTo(ctx, t.chatID, msg)
}

func (t *Telegram) sendTo(ctx context.Context, chatID int64, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(tgbot.NewMessage(chatID, msg))
	return err
}

// Start запускает приём команд в фоне.
func (t *Telegram) Start() {
	t.started = true
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer close(t.done)
		for {
			select {
			case <-t.stop:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				t.handleUpdate(ctx, update)
				cancel()
			}
		}
	}()
	logger.Info("[TG] listening for commands")
}

func (t *Telegram) Stop() {
	if !t.started {
		return
	}
	t.bot.StopReceivingUpdates()
	close(t.stop)
	<-t.done
}
