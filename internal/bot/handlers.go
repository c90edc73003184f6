package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/LORD-SANTINO/Number-bot/internal/conversation"
	"github.com/LORD-SANTINO/Number-bot/internal/domain"
)

// Sender is the part of *tgbotapi.BotAPI the handler uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Users interface {
	Upsert(ctx context.Context, u domain.User) error
}

type Conversations interface {
	Step(ctx context.Context, userID int64, d conversation.Dialog, in conversation.Input) (conversation.Dialog, conversation.Reply)
	Trial() bool
}

type UpdateObserver interface {
	ObserveUpdate(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveUpdate(string) {}

type Handler struct {
	api     Sender
	users   Users
	conv    Conversations
	store   conversation.Store
	metrics UpdateObserver
	log     *zap.Logger
}

func NewHandler(api Sender, users Users, conv Conversations, store conversation.Store, metrics UpdateObserver, log *zap.Logger) *Handler {
	if metrics == nil {
		metrics = nopObserver{}
	}
	return &Handler{api: api, users: users, conv: conv, store: store, metrics: metrics, log: log.Named("bot")}
}

func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		h.metrics.ObserveUpdate("callback")
		h.HandleCallback(ctx, upd.CallbackQuery)
		return
	}

	if upd.Message == nil {
		return
	}

	msg := upd.Message
	// private chats only
	if !msg.Chat.IsPrivate() || msg.From == nil {
		return
	}
	h.metrics.ObserveUpdate("message")

	userID := msg.From.ID
	log := h.log.With(zap.Int64("user_id", userID))

	if err := h.users.Upsert(ctx, userFrom(msg.From)); err != nil {
		log.Error("upsert user", zap.Error(err))
		h.reply(msg.Chat.ID, conversation.Reply{Text: "Sorry, something went wrong. Please try again later."})
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	in := conversation.Input{Text: text}
	if strings.HasPrefix(text, "/") {
		cmd, ok := conversation.ParseCommand(text)
		if !ok {
			h.reply(msg.Chat.ID, conversation.Reply{
				Text:     "Unknown command. Use /help to see what I can do.",
				Keyboard: conversation.KeyboardKeep,
			})
			return
		}
		in = conversation.Input{Command: cmd}
	}

	h.step(ctx, msg.Chat.ID, userID, in)
}

// step runs one input through the stored dialog of the user and replies.
func (h *Handler) step(ctx context.Context, chatID, userID int64, in conversation.Input) {
	log := h.log.With(zap.Int64("user_id", userID))

	d, err := h.store.Load(ctx, userID)
	if err != nil {
		log.Warn("load dialog, starting over", zap.Error(err))
		d = conversation.Dialog{State: conversation.Idle}
	}

	next, r := h.conv.Step(ctx, userID, d, in)
	if err := h.store.Save(ctx, userID, next); err != nil {
		log.Error("save dialog", zap.String("state", string(next.State)), zap.Error(err))
	}
	log.Debug("step", zap.String("from", string(d.State)), zap.String("state", string(next.State)))

	h.reply(chatID, r)
}

func (h *Handler) reply(chatID int64, r conversation.Reply) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	switch {
	case r.CheckButton:
		msg.ReplyMarkup = checkKeyboard()
	case r.Keyboard == conversation.KeyboardMenu:
		msg.ReplyMarkup = menuKeyboard(h.conv.Trial())
	case r.Keyboard == conversation.KeyboardRemove:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}

	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn("send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func userFrom(u *tgbotapi.User) domain.User {
	return domain.User{
		ID:        u.ID,
		Username:  optional(u.UserName),
		FirstName: optional(u.FirstName),
		LastName:  optional(u.LastName),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
