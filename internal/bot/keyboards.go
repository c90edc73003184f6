package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/LORD-SANTINO/Number-bot/internal/conversation"
)

const callbackCheck = "check"

func menuKeyboard(trial bool) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for _, labels := range conversation.MenuRows(trial) {
		row := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, l := range labels {
			row = append(row, tgbotapi.NewKeyboardButton(l))
		}
		rows = append(rows, row)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

func checkKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("📨 Check messages", callbackCheck),
		},
	)
}

func (h *Handler) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// stop the spinner on the button
	if _, err := h.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		h.log.Warn("answer callback", zap.Error(err))
	}

	if q.Message == nil || q.From == nil {
		return
	}
	if err := h.users.Upsert(ctx, userFrom(q.From)); err != nil {
		h.log.Error("upsert user", zap.Int64("user_id", q.From.ID), zap.Error(err))
		return
	}

	switch q.Data {
	case callbackCheck:
		h.step(ctx, q.Message.Chat.ID, q.From.ID, conversation.Input{Command: conversation.CmdCheck})
	default:
		h.log.Debug("unknown callback", zap.String("data", q.Data))
	}
}
