package service

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	// отвечаем только сервисному чату
	if msg.Chat.ID != t.chatID {
		return
	}

	switch msg.Command() {
	case "stats":
		t.handleStats(ctx, msg.Chat.ID)
	case "start", "help":
		if _, err := t.Send(ctx, msg.Chat.ID, helpText); err != nil {
			t.log.Warn("send help", zap.Error(err))
		}
	default:
	}
}

func (t *Telegram) handleStats(ctx context.Context, chatID int64) {
	if t.stats == nil {
		return
	}
	counts, err := t.stats.CountByStatus(ctx)
	if err != nil {
		_, _ = t.SendF(ctx, chatID, "❗️ Не удалось получить статистику: %v", err)
		return
	}
	if _, err := t.Send(ctx, chatID, formatStats(counts)); err != nil {
		t.log.Warn("send stats", zap.Error(err))
	}
}
