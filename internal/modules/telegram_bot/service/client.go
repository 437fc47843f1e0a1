package service

import (
	"context"
	"fmt"
	"sync"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/config"
	"signal_exec/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// StatsReader — счётчики джобов для /stats.
type StatsReader interface {
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// Telegram — сервисный чат: уведомления об ошибках и пара команд.
// Без токена работает как no-op.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	stats  StatsReader
	log    *zap.Logger

	stopOnce sync.Once
}

func NewTelegram(cfg *config.Config, stats StatsReader) (*Telegram, error) {
	if cfg.Telegram.Token == "" {
		logger.L().Warn("telegram disabled: empty token")
		return &Telegram{log: logger.L().Named("telegram")}, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return NewTelegramWithBot(b, cfg.Telegram.ChatID, stats), nil
}

func NewTelegramWithBot(bot *tgbot.BotAPI, chatID int64, stats StatsReader) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		stats:  stats,
		log:    logger.L().Named("telegram"),
	}
}

func (t *Telegram) Enabled() bool {
	return t != nil && t.bot != nil && t.chatID != 0
}

func (t *Telegram) Send(_ context.Context, chatID int64, msg string) (tgbot.Message, error) {
	if t.bot == nil {
		return tgbot.Message{}, nil
	}
	return t.bot.Send(tgbot.NewMessage(chatID, msg))
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) (tgbot.Message, error) {
	return t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

// SendService пишет в сервисный чат; ошибки только логируются.
func (t *Telegram) SendService(ctx context.Context, format string, args ...any) {
	if !t.Enabled() {
		return
	}
	if _, err := t.SendF(ctx, t.chatID, format, args...); err != nil {
		t.log.Warn("send service message", zap.Error(err))
	}
}

// Start читает апдейты до отмены ctx или Stop.
func (t *Telegram) Start(ctx context.Context) {
	if t.bot == nil {
		return
	}
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) Stop() {
	if t.bot == nil {
		return
	}
	t.stopOnce.Do(t.bot.StopReceivingUpdates)
}
