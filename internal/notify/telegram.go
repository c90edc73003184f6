package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts audit events to a channel given as a numeric chat id or
// an @username.
type Telegram struct {
	api     sender
	chatID  int64
	channel string
	log     *zap.Logger
}

var _ Sink = (*Telegram)(nil)

func NewTelegram(api sender, channel string, log *zap.Logger) (*Telegram, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, errors.New("notify: empty channel id")
	}
	t := &Telegram{api: api, log: log.Named("notify.telegram")}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		t.chatID = id
		return t, nil
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	t.channel = channel
	return t, nil
}

func (t *Telegram) Publish(_ context.Context, msg string) bool {
	var m tgbotapi.MessageConfig
	if t.channel != "" {
		m = tgbotapi.NewMessageToChannel(t.channel, msg)
	} else {
		m = tgbotapi.NewMessage(t.chatID, msg)
	}
	m.DisableWebPagePreview = true

	if _, err := t.api.Send(m); err != nil {
		t.log.Warn("publish to channel failed", zap.Int64("chat_id", t.chatID), zap.String("channel", t.channel), zap.Error(err))
		return false
	}
	return true
}
