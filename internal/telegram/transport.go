// Package telegram implements the primary chat transport adapter on top
// of github.com/go-telegram/bot, grounded on internal/telegram/bot.go's
// SendMessageAndTrack/EditMessage/ButtonConfig/AskUser shape.
package telegram

import (
	"context"
	"strconv"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/arcrelay/bridge/internal/ingress"
	"github.com/arcrelay/bridge/internal/orchestrator"
)

// Bot wraps a go-telegram/bot client as an ingress.Transport.
type Bot struct {
	api      *tgbot.Bot
	pipeline *ingress.Pipeline
}

// New constructs a Bot bound to token. The returned Bot must have its
// Pipeline set (via SetPipeline) before Start is called, because the
// pipeline itself is constructed with this Bot as its Transport — mirrors
// the circular wiring resolved the same way in
// internal/telegram/bot.go.
func New(token string) (*Bot, error) {
	b := &Bot{}
	api, err := tgbot.New(token, tgbot.WithDefaultHandler(b.handleUpdate))
	if err != nil {
		return nil, err
	}
	b.api = api
	return b, nil
}

func (b *Bot) SetPipeline(p *ingress.Pipeline) { b.pipeline = p }

func (b *Bot) Start(ctx context.Context) { b.api.Start(ctx) }

func (b *Bot) handleUpdate(ctx context.Context, api *tgbot.Bot, update *models.Update) {
	if update.Message != nil {
		u := ingress.Update{
			ChatKey:         strconv.FormatInt(update.Message.Chat.ID, 10),
			UserID:          strconv.FormatInt(update.Message.From.ID, 10),
			OriginMessageID: strconv.Itoa(update.Message.ID),
			Text:            update.Message.Text,
		}
		if update.Message.MessageThreadID != 0 {
			u.ForumTopicID = strconv.Itoa(update.Message.MessageThreadID)
		}
		_ = b.pipeline.Handle(ctx, u)
		return
	}
	if update.CallbackQuery != nil {
		cq := update.CallbackQuery
		chatID := ""
		if cq.Message.Message != nil {
			chatID = strconv.FormatInt(cq.Message.Message.Chat.ID, 10)
		}
		// Every callback's Data is treated as a queue entry id and routed
		// lock-free to the pipeline's Cancel path; data that names no queued
		// entry has no effect.
		b.pipeline.Cancel(chatID, cq.Data)
	}
}

// PostIndicator implements ingress.Transport: replies to the origin
// message with a visible queue indicator carrying a "cancel this message"
// inline button bound to cancelData, grounded on
// SendMessageWithButtons/ButtonConfig{Text,Data}.
func (b *Bot) PostIndicator(ctx context.Context, u ingress.Update, cancelData string) (string, error) {
	chatID, err := strconv.ParseInt(u.ChatKey, 10, 64)
	if err != nil {
		return "", err
	}
	msgID, err := strconv.Atoi(u.OriginMessageID)
	if err != nil {
		return "", err
	}
	kb := models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Cancel this message", CallbackData: cancelData}},
		},
	}
	sent, err := b.api.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:          chatID,
		Text:            "Queued…",
		ReplyParameters: &models.ReplyParameters{MessageID: msgID},
		ReplyMarkup:     kb,
	})
	if err != nil {
		return "", err
	}
	return u.ChatKey + ":" + strconv.Itoa(sent.ID), nil
}

// EditMessage implements ingress.Transport. Failing edits are logged and
// ignored by the caller — this
// method simply surfaces the transport error for that caller to decide.
func (b *Bot) EditMessage(ctx context.Context, messageID, text string) error {
	chatID, msgID, err := splitMessageKey(messageID)
	if err != nil {
		return err
	}
	_, err = b.api.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: msgID,
		Text:      text,
	})
	return err
}

func (b *Bot) DeleteMessage(ctx context.Context, messageID string) error {
	chatID, msgID, err := splitMessageKey(messageID)
	if err != nil {
		return err
	}
	_, err = b.api.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: chatID, MessageID: msgID})
	return err
}

func (b *Bot) DeliverReply(ctx context.Context, u ingress.Update, reply orchestrator.Reply) error {
	chatID, err := strconv.ParseInt(u.ChatKey, 10, 64)
	if err != nil {
		return err
	}
	params := &tgbot.SendMessageParams{ChatID: chatID, Text: reply.Text}
	if u.ForumTopicID != "" {
		if topicID, err := strconv.Atoi(u.ForumTopicID); err == nil {
			params.MessageThreadID = topicID
		}
	}
	if len(reply.Buttons) > 0 {
		row := make([]models.InlineKeyboardButton, 0, len(reply.Buttons))
		for _, btn := range reply.Buttons {
			row = append(row, models.InlineKeyboardButton{Text: btn.Text, CallbackData: btn.Data})
		}
		params.ReplyMarkup = models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{row}}
	}
	_, err = b.api.SendMessage(ctx, params)
	return err
}

// splitMessageKey decodes the "<chatID>:<messageID>" composite key this
// transport stores as an indicator message id, since go-telegram/bot needs
// both to edit or delete a message.
func splitMessageKey(key string) (int64, int, error) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			chatID, err := strconv.ParseInt(key[:i], 10, 64)
			if err != nil {
				return 0, 0, err
			}
			msgID, err := strconv.Atoi(key[i+1:])
			return chatID, msgID, err
		}
	}
	return 0, 0, errInvalidKey
}

var errInvalidKey = &keyError{}

type keyError struct{}

func (*keyError) Error() string { return "telegram: invalid composite message key" }
